package main

import (
	"context"
	"fmt"
	"log"
	"sync"

	"mtucontrol/logsync"
	"mtucontrol/markstore"
)

// logKeeper feeds push payloads to the synchronizer, keeps the persisted
// mark in step with it, and starts over when the device's numbering does.
type logKeeper struct {
	ctx    context.Context
	store  markstore.Store
	syncer *logsync.Synchronizer
	logger *log.Logger

	// saved is only touched from the push goroutine.
	saved int64

	mu         sync.Mutex
	freeMemory *int64
}

// seedFromStore initializes syncer one past the saved mark, or from the
// beginning when nothing (or nothing readable) was saved.
func seedFromStore(ctx context.Context, store markstore.Store, syncer *logsync.Synchronizer, logger *log.Logger) *logKeeper {
	if logger == nil {
		logger = log.Default()
	}
	seed := int64(0)
	if saved, ok, err := store.Load(ctx); err != nil {
		logger.Printf("Could not load log mark, starting from the beginning: %v", err)
	} else if ok {
		seed = saved + 1
	}
	if err := syncer.Initialize(seed); err != nil {
		logger.Printf("Log mark not restored: %v", err)
	}
	return &logKeeper{
		ctx:    ctx,
		store:  store,
		syncer: syncer,
		logger: logger,
		saved:  syncer.Mark(),
	}
}

func (k *logKeeper) HandleMessage(payload []byte) error {
	msg, err := logsync.ParseMessage(payload)
	if err != nil {
		k.logger.Printf("Dropping log batch: %v", err)
		return err
	}

	// The device always pushes its newest line, so a batch that ends below
	// the mark means its counter restarted.
	if newest, ok := msg.Logs.Newest(); ok && newest < k.syncer.Mark() {
		k.logger.Printf("Device restarted (newest log #%d is behind #%d), rendering from the beginning", newest, k.syncer.Mark())
		k.syncer.Reset(0)
	}
	k.syncer.ApplyBatch(msg.Logs)

	if msg.FreeMemory != nil {
		k.mu.Lock()
		k.freeMemory = msg.FreeMemory
		k.mu.Unlock()
	}

	if mark := k.syncer.Mark(); mark != k.saved {
		if err := k.store.Save(k.ctx, mark); err != nil {
			k.logger.Printf("Could not save log mark: %v", err)
		} else {
			k.saved = mark
		}
	}
	return nil
}

// status reports the last rendered line and the device's free memory as of
// the latest push.
func (k *logKeeper) status() []string {
	lines := []string{fmt.Sprintf("Last log: %d", k.syncer.Mark())}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.freeMemory != nil {
		lines = append(lines, fmt.Sprintf("Free mem: %d", *k.freeMemory))
	}
	return lines
}
