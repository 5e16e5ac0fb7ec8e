package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// startProfiling starts a CPU profile if cpuPath is set. The returned
// function stops it and, if memPath is set, writes a heap profile.
func startProfiling(cpuPath, memPath string) (func() error, error) {
	var cpuFile *os.File

	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}

		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}

		cpuFile = f
	}

	stop := func() error {
		var errs []error

		if cpuFile != nil {
			pprof.StopCPUProfile()
			errs = append(errs, cpuFile.Close())
		}

		if memPath != "" {
			errs = append(errs, writeHeapProfile(memPath))
		}

		return errors.Join(errs...)
	}

	return stop, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	return nil
}
