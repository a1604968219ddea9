package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

const txHashBufferSize = 10000

// TxHashWriter appends submitted hashes to a file from a background goroutine.
// A nil *TxHashWriter is a valid, disabled writer.
type TxHashWriter struct {
	ch   chan string
	file *os.File
	wg   sync.WaitGroup
	log  log.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewTxHashWriter opens path for appending and writes a run header.
// An empty path returns a nil (disabled) writer.
func NewTxHashWriter(path, runID string, l log.Logger) (*TxHashWriter, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open tx hash file")
	}
	if _, err := fmt.Fprintf(file, "# run %s started %s\n", runID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "failed to write tx hash file header")
	}

	w := &TxHashWriter{
		ch:   make(chan string, txHashBufferSize),
		file: file,
		log:  l,
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for hash := range w.ch {
			if _, err := w.file.WriteString(hash + "\n"); err != nil {
				w.log.Warn("Failed to write tx hash", "hash", hash, "err", err)
			}
		}
	}()

	l.Info("Tx hash writer enabled", "path", path)
	return w, nil
}

// Write queues a hash without blocking; it is dropped when the buffer is full
func (w *TxHashWriter) Write(hash ethcmn.Hash) {
	if w == nil {
		return
	}

	select {
	case w.ch <- hash.Hex():
	default:
		w.log.Warn("Tx hash buffer full, dropping hash", "hash", hash)
	}
}

// Close drains queued hashes, syncs and closes the file
func (w *TxHashWriter) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() {
		close(w.ch)
		w.wg.Wait()
		if err := w.file.Sync(); err != nil {
			w.closeErr = errors.Wrap(err, "failed to sync tx hash file")
		}
		if err := w.file.Close(); err != nil && w.closeErr == nil {
			w.closeErr = errors.Wrap(err, "failed to close tx hash file")
		}
	})
	return w.closeErr
}
