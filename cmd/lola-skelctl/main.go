// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command lola-skelctl is a smoke-test harness for the event slot control
// plane: it offers one event, publishes a monotonic counter payload on a
// timer, and prints diagnostic counters on SIGINT. It exercises eventctl,
// shmem, translog, and tracing end to end without reimplementing service
// discovery or a real transport. Given -attach-fd, it instead attaches
// read-only to another instance's shared-memory control array and dumps
// its current slot statuses.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code.hybscloud.com/lola/config"
	"code.hybscloud.com/lola/eventctl"
	"code.hybscloud.com/lola/shmem"
	"code.hybscloud.com/lola/tracing"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to the TOML deployment descriptor (omit to use -slots/-subscribers)")
		slots        = flag.Int("slots", 8, "control array size, used when -config is not given")
		subs         = flag.Int("subscribers", 4, "transaction log capacity, used when -config is not given")
		interval     = flag.Duration("interval", 100*time.Millisecond, "publish interval")
		verbose      = flag.BoolP("verbose", "v", false, "enable debug logging")
		attachFD     = flag.Int("attach-fd", -1, "inspect an already-running publisher's QM control array via this open file descriptor, instead of starting a new publisher")
		attachOffset = flag.Int64("attach-offset", 0, "byte offset of the QM control array within the attached file descriptor")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	descriptor := config.Descriptor{MaxSlots: *slots, MaxSubscribers: *subs}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("lola-skelctl: failed to load deployment descriptor")
		}
		descriptor = loaded
	}

	registry := shmem.NewRegistry()

	if *attachFD >= 0 {
		attachAndInspect(registry, *attachFD, int(*attachOffset), descriptor.MaxSlots)
		return
	}

	arena, err := shmem.NewAnonymousArena(descriptor.MaxSlots*8*2, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("lola-skelctl: failed to create shared-memory arena")
	}
	defer arena.Close()

	qmSlots, err := arena.NewControlSlots(descriptor.MaxSlots)
	if err != nil {
		log.Fatal().Err(err).Msg("lola-skelctl: failed to carve the QM control array")
	}
	qm := eventctl.NewEventDataControlWithFactory(descriptor.MaxSlots, descriptor.MaxSubscribers, qmSlots.Factory())

	composite := eventctl.NewComposite(qm)
	if descriptor.AsilBEnabled {
		bSlots, err := arena.NewControlSlots(descriptor.MaxSlots)
		if err != nil {
			log.Fatal().Err(err).Msg("lola-skelctl: failed to carve the ASIL-B control array")
		}
		asilB := eventctl.NewEventDataControlWithFactory(descriptor.MaxSlots, descriptor.MaxSubscribers, bSlots.Factory())
		composite = eventctl.NewCompositeWithAsilB(qm, asilB)
	}

	sink := tracing.NewQueueSink(256)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Int("max_slots", descriptor.MaxSlots).Int("max_subscribers", descriptor.MaxSubscribers).
		Bool("asil_b_enabled", descriptor.AsilBEnabled).Msg("lola-skelctl: starting publish loop")

	publishLoop(ctx, composite, sink, *interval)

	printDiagnostics()
}

func publishLoop(ctx context.Context, composite *eventctl.Composite, sink tracing.Sink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var counter eventctl.Timestamp = 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ind := composite.AllocateNextSlot()
			if !ind.IsValid() {
				log.Warn().Msg("lola-skelctl: allocation failed, all slots held by live references")
				continue
			}
			sink.Emit(tracing.Event{Kind: tracing.KindAllocate, Slot: ind.Index()})

			composite.EventReady(ind, counter)
			sink.Emit(tracing.Event{Kind: tracing.KindPublish, Slot: ind.Index(), Stamp: counter})

			log.Debug().Uint32("timestamp", uint32(counter)).Msg("lola-skelctl: published sample")
			counter++
		}
	}
}

// attachAndInspect maps an already-open shared-memory file descriptor
// belonging to another lola-skelctl process and prints the current status
// word of every QM slot, without joining as a publisher or subscriber.
// This is the one production path that reconstructs control words at an
// externally-supplied offset rather than one this process allocated
// itself, so every word's address is checked against the registry before
// it is dereferenced.
func attachAndInspect(registry *shmem.Registry, fd, offset, maxSlots int) {
	size := offset + maxSlots*8
	arena, err := shmem.NewFileBackedArena(fd, size, registry)
	if err != nil {
		log.Fatal().Err(err).Int("fd", fd).Msg("lola-skelctl: failed to attach to the shared-memory file descriptor")
	}
	defer arena.Close()

	qmSlots, err := arena.AttachControlSlots(offset, maxSlots)
	if err != nil {
		log.Fatal().Err(err).Msg("lola-skelctl: attached control array failed address validation")
	}

	for i, word := range qmSlots.LoadAll() {
		log.Info().Int("slot", i).Uint64("status_word", word).Msg("lola-skelctl: attached slot status")
	}
}

func printDiagnostics() {
	snap := eventctl.DumpPerformanceCounters()
	log.Info().
		Uint64("alloc_misses", snap.NumAllocMisses).
		Uint64("alloc_retries", snap.NumAllocRetries).
		Uint64("ref_misses", snap.NumRefMisses).
		Uint64("ref_retries", snap.NumRefRetries).
		Msg("lola-skelctl: shutting down")
}
