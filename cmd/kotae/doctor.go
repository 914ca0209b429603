package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/llm"
)

// credentialCheckTimeout bounds the provider credential check.
const credentialCheckTimeout = 10 * time.Second

func runDoctor() {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()
	a := mustOpenApp(ctx, *configPath, false)
	defer a.close()
	if !doctor(ctx, os.Stdout, a) {
		os.Exit(1)
	}
}

// doctor runs a round trip through each backend and prints one line per
// check. It returns false when any check failed.
func doctor(ctx context.Context, w io.Writer, a *app) bool {
	ok := true
	check := func(name string, err error, detail string) {
		if err != nil {
			ok = false
			fmt.Fprintf(w, "[FAIL] %-10s %v\n", name, err)
			return
		}
		fmt.Fprintf(w, "[ OK ] %-10s %s\n", name, detail)
	}

	n, err := a.comps.Storage.CountItems(ctx)
	check("content", err, fmt.Sprintf("%d item(s) in %s", n, a.cfg.Storage.DatabasePath))

	docs, err := a.comps.Index.DocCount()
	check("index", err, fmt.Sprintf("%d document(s) in %s", docs, a.cfg.Storage.BleveIndexPath))

	c := a.comps.Cache
	if !c.Enabled() {
		fmt.Fprintf(w, "[WARN] %-10s disabled (backend %q)\n", "cache", a.cfg.Cache.Backend)
	} else {
		check("cache", cacheRoundTrip(ctx, a), a.cfg.Cache.Backend+" put/get/delete round trip")
	}

	switch {
	case a.comps.Synthesizer != nil:
		name := a.comps.Synthesizer.Name()
		err := checkSynthesisCredentials(ctx, a.comps.Synthesizer)
		switch {
		case err == nil:
			fmt.Fprintf(w, "[ OK ] %-10s %s (API key accepted)\n", "synthesis", name)
		case errors.Is(err, llm.ErrCheckUnsupported):
			fmt.Fprintf(w, "[ OK ] %-10s %s\n", "synthesis", name)
		default:
			ok = false
			fmt.Fprintf(w, "[FAIL] %-10s %v\n", "synthesis", err)
		}
	case a.cfg.Search.RequireSynthesisOrDefault():
		ok = false
		fmt.Fprintf(w, "[FAIL] %-10s provider %q not configured and search.require_synthesis is on\n", "synthesis", a.cfg.Synthesis.Provider)
	default:
		fmt.Fprintf(w, "[WARN] %-10s provider %q not configured; answers use the fallback summary\n", "synthesis", a.cfg.Synthesis.Provider)
	}

	if types := a.cfg.Search.PermittedTypes(); len(types) == 0 {
		ok = false
		fmt.Fprintf(w, "[FAIL] %-10s no content type is permitted\n", "types")
	} else {
		fmt.Fprintf(w, "[ OK ] %-10s %v\n", "types", types)
	}
	return ok
}

func cacheRoundTrip(ctx context.Context, a *app) error {
	c := a.comps.Cache
	if err := c.EnsureStorage(ctx); err != nil {
		return fmt.Errorf("ensure storage: %w", err)
	}
	probe := "kotae doctor probe " + uuid.NewString()
	c.Put(ctx, probe, "probe", []string{"doctor"})
	entry, hit := c.Get(ctx, probe)
	if !hit {
		return fmt.Errorf("probe entry not readable after write")
	}
	if entry.Response != "probe" || len(entry.SourceIDs) != 1 {
		return fmt.Errorf("probe entry read back as %q %v", entry.Response, entry.SourceIDs)
	}
	deleted, err := c.Forget(ctx, probe)
	if err != nil {
		return fmt.Errorf("delete probe: %w", err)
	}
	if !deleted {
		return fmt.Errorf("probe entry missing on delete")
	}
	return nil
}

func checkSynthesisCredentials(ctx context.Context, s llm.Synthesizer) error {
	ctx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()
	return llm.CheckCredentials(ctx, s)
}
