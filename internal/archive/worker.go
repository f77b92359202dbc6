/*
Mailward - mail submission policy daemon.
Copyright © 2021-2024 Mailward contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package archive stores copies of submitted messages in the background.
//
// The policy pipeline hands composed messages to a Worker and continues
// immediately: archival never adds latency to the SMTP transaction and its
// failures are visible only in the log. Duplicate copies (byte-identical
// content for the same account) are suppressed.
package archive

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mailward/mailward/framework/log"
	"github.com/mailward/mailward/framework/module"
)

// dedupWindow bounds the per-account set of recently stored content hashes
// used for duplicate suppression.
const dedupWindow = 128

type task struct {
	id  string
	rec *module.ArchiveRecord
}

// Worker consumes archive records from a bounded queue and writes them to
// the sink one at a time.
type Worker struct {
	sink module.ArchiveSink
	log  log.Logger

	// Timeout applies to each individual sink write.
	Timeout time.Duration

	tasks chan task
	done  chan struct{}

	seenLck sync.Mutex
	seen    map[string][]string

	closeOnce sync.Once
}

// New starts a worker goroutine consuming from a queue of the given size.
func New(sink module.ArchiveSink, queueLen int, logger log.Logger) *Worker {
	w := &Worker{
		sink:    sink,
		log:     logger,
		Timeout: time.Minute,
		tasks:   make(chan task, queueLen),
		done:    make(chan struct{}),
		seen:    map[string][]string{},
	}
	go w.run()
	return w
}

// Submit queues the record for archival and returns without waiting for the
// write. When the queue is full the record is dropped with a log message;
// archival never stalls the mail flow.
//
// The record's Body must be fully buffered before Submit is called; the
// caller must not Remove it afterwards, the worker owns it now.
func (w *Worker) Submit(rec *module.ArchiveRecord) {
	t := task{id: uuid.New().String(), rec: rec}
	select {
	case w.tasks <- t:
		w.log.DebugMsg("archive queued", "task", t.id, "username", rec.Username)
	default:
		w.log.Msg("archive queue full, dropping copy",
			"task", t.id, "username", rec.Username)
		if err := rec.Body.Remove(); err != nil {
			w.log.Error("failed to discard dropped copy", err, "task", t.id)
		}
	}
}

// Close stops the worker after draining already queued records.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.tasks)
	})
	<-w.done
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	for t := range w.tasks {
		w.store(t)
	}
}

func (w *Worker) store(t task) {
	rec := t.rec
	defer func() {
		if err := rec.Body.Remove(); err != nil {
			w.log.Error("failed to discard stored copy", err, "task", t.id)
		}
	}()

	if rec.SuppressDuplicate {
		hash, err := w.contentHash(rec)
		if err != nil {
			w.log.Error("archive failed", err, "task", t.id, "username", rec.Username)
			return
		}
		if w.isDuplicate(rec.Username, hash) {
			w.log.Msg("archive skipped, duplicate content",
				"task", t.id, "username", rec.Username)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()

	status, err := w.sink.Append(ctx, rec)
	if err != nil {
		w.log.Error("archive failed", err, "task", t.id, "username", rec.Username)
		return
	}
	if status.Duplicate {
		w.log.Msg("archive skipped, duplicate content",
			"task", t.id, "username", rec.Username)
		return
	}
	w.log.Msg("archived sent message", "task", t.id,
		"username", rec.Username, "uid", status.UID)
}

func (w *Worker) contentHash(rec *module.ArchiveRecord) (string, error) {
	r, err := rec.Body.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isDuplicate checks and records the content hash for the account. Only the
// last dedupWindow hashes are remembered, older duplicates are stored
// again - acceptable for the purpose of suppressing immediate resubmissions.
func (w *Worker) isDuplicate(username, hash string) bool {
	w.seenLck.Lock()
	defer w.seenLck.Unlock()

	hashes := w.seen[username]
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}

	hashes = append(hashes, hash)
	if len(hashes) > dedupWindow {
		hashes = hashes[len(hashes)-dedupWindow:]
	}
	w.seen[username] = hashes
	return false
}
