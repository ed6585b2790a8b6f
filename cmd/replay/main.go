package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "rtsim.ai/internal/persistence/log"
	"rtsim.ai/internal/persistence/snapshot"
	"rtsim.ai/internal/sim/rtsim"
	"rtsim.ai/internal/sim/rtsim/data"
	"rtsim.ai/internal/sim/tuning"
	"rtsim.ai/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		tuningPath = flag.String("tuning", "./configs/rtsim.yaml", "path to rtsim.yaml")
		ticks      = flag.Uint64("ticks", 300, "ticks to step when no events dir is given")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d seed=%d npcs=%d sites=%d reports=%d links=%d digest=%s\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed,
		len(snap.Npcs), len(snap.Sites), len(snap.Reports), len(snap.Links), snapshot.Digest(snap))

	tune, err := tuning.Load(*tuningPath)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if err != nil {
		tune = tuning.Defaults()
	}
	tune.Seed = snap.Seed
	tune.World.Size = snap.WorldSize
	if snap.TickRate > 0 {
		tune.TickRateHz = snap.TickRate
	}
	tune.SnapshotEveryTicks = 0

	d, err := data.ImportSnapshot(snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	terrain := world.NewProcedural(world.ProceduralConfig{Seed: int64(tune.Seed), Size: tune.World.Size, Sites: tune.World.Sites})
	sim := rtsim.New(rtsim.Config{ID: snap.Header.WorldID, Tuning: tune}, d, terrain, nil, nil)
	ctx := context.Background()

	if *eventsDir == "" {
		var speech, deaths int
		for i := uint64(0); i < *ticks; i++ {
			e := sim.StepOnce(ctx, nil, nil, nil)
			speech += len(e.Speech)
			deaths += len(e.Deaths)
		}
		fmt.Printf("stepped %d ticks to tick=%d speech=%d deaths=%d digest=%s\n",
			*ticks, sim.CurrentTick(), speech, deaths, snapshot.Digest(sim.ExportSnapshot()))
		return
	}

	files, err := listEventFiles(*eventsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line json.RawMessage) error {
			var want rtsim.TickLogEntry
			if err := json.Unmarshal(line, &want); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if want.Tick <= snap.Header.Tick {
				return nil
			}
			// Client input is not logged, so replay ends where characters appear.
			if len(want.Joins) > 0 || len(want.Leaves) > 0 || want.Loaded > 0 {
				return errStop
			}
			got := sim.StepOnce(ctx, nil, nil, nil)
			if got.Tick != want.Tick {
				return fmt.Errorf("tick mismatch: stepped=%d logged=%d (file=%s)", got.Tick, want.Tick, filepath.Base(path))
			}
			if err := compare(got, want); err != nil {
				return fmt.Errorf("tick %d: %w", got.Tick, err)
			}
			checked++
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d) digest=%s\n",
		checked, snap.Header.Tick, snapshot.Digest(sim.ExportSnapshot()))
}

func compare(got, want rtsim.TickLogEntry) error {
	switch {
	case got.Polled != want.Polled:
		return fmt.Errorf("polled: got=%d want=%d", got.Polled, want.Polled)
	case got.Simulated != want.Simulated:
		return fmt.Errorf("simulated: got=%d want=%d", got.Simulated, want.Simulated)
	case len(got.Speech) != len(want.Speech):
		return fmt.Errorf("speech: got=%d want=%d", len(got.Speech), len(want.Speech))
	case len(got.Deaths) != len(want.Deaths):
		return fmt.Errorf("deaths: got=%d want=%d", len(got.Deaths), len(want.Deaths))
	}
	for i := range got.Speech {
		if got.Speech[i] != want.Speech[i] {
			return fmt.Errorf("speech[%d]: got=%+v want=%+v", i, got.Speech[i], want.Speech[i])
		}
	}
	return nil
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}
