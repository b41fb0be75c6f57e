package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/foxglove/mcap/go/mcap"
)

// earliestMessageTime scans the MCAP file at path for its earliest message
// time.
//
// Two results are tracked: the earliest time on or after the validity
// cutoff, and the earliest time overall. Epoch-defaulted recorders write
// zero or near-zero log times, which must not shadow real timestamps later
// in the stream.
//
// The summary section's statistics record is used when present (it carries
// the stream's MessageStartTime without a full scan); otherwise every
// message is visited in file order.
func earliestMessageTime(path string) (valid, any time.Time, err error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	reader, err := mcap.NewReader(f)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read recording container: %w", err)
	}
	defer reader.Close()

	// Fast path: indexed files carry statistics in the summary section.
	if info, infoErr := reader.Info(); infoErr == nil && info != nil &&
		info.Statistics != nil && info.Statistics.MessageCount > 0 {
		t := TimeFromEpoch(info.Statistics.MessageStartTime)
		if IsValidTimestamp(t) {
			return t, t, nil
		}
		return time.Time{}, t, nil
	}

	// Slow path: unindexed or truncated files are scanned message by message.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to rewind recording: %w", err)
	}
	reader, err = mcap.NewReader(f)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read recording container: %w", err)
	}
	defer reader.Close()

	it, err := reader.Messages(mcap.UsingIndex(false))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to iterate recording messages: %w", err)
	}

	var earliestValid, earliestAny uint64
	seenValid, seenAny := false, false

	for {
		_, _, msg, err := it.Next(nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A truncated tail after valid messages still yields a result.
			if seenAny {
				break
			}
			return time.Time{}, time.Time{}, fmt.Errorf("failed to decode recording message: %w", err)
		}

		lt := msg.LogTime
		if lt == 0 {
			lt = msg.PublishTime
		}

		if !seenAny || lt < earliestAny {
			earliestAny = lt
			seenAny = true
		}
		if IsValidTimestamp(TimeFromEpoch(lt)) && (!seenValid || lt < earliestValid) {
			earliestValid = lt
			seenValid = true
		}
	}

	if seenValid {
		valid = TimeFromEpoch(earliestValid)
	}
	if seenAny {
		any = TimeFromEpoch(earliestAny)
	}
	return valid, any, nil
}
