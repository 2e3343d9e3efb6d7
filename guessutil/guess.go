/*
Copyright © 2026 the GUESS authors.
This file is part of GUESS.

GUESS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GUESS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.
*/

package guessutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/checkpoint"
)

// newLogger returns a logger writing to out and, if logFile is not empty,
// to logFile. The returned function closes the log file.
func newLogger(out io.Writer, logFile string) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.Out = out
	if logFile == "" {
		return log, func() error { return nil }, nil
	}
	f, err := os.Create(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("guess: problem creating log file: %v", err)
	}
	log.Out = io.MultiWriter(out, f)
	return log, f.Close, nil
}

// serveMetrics serves the model metrics at address until the returned
// function is called. It returns the address it listens on.
func serveMetrics(address string, m *guess.Metrics, log logrus.FieldLogger) (string, func() error, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return "", nil, fmt.Errorf("guess: serving metrics: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("address", l.Addr().String()).Info("serving metrics")
	return l.Addr().String(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

// restoreOrSetup resumes the simulation from the checkpoint of rank if
// there is one, and otherwise sets up new gridcells.
func restoreOrSetup(ctx context.Context, s *checkpoint.Store, rank int, grid *guess.GridConfig, log logrus.FieldLogger) guess.DomainManipulator {
	restore := checkpoint.Restore(ctx, s, rank)
	setup := guess.SetupGridcells(grid)
	return func(d *guess.GUESS) error {
		err := restore(d)
		if errors.Is(err, checkpoint.ErrNotFound) {
			log.WithField("key", s.Key(rank)).Info("no checkpoint found; starting a new simulation")
			return setup(d)
		}
		return err
	}
}

// Run runs a simulation with the given configuration, writing log
// messages to out.
func Run(ctx context.Context, out io.Writer, cfg *RunConfig) error {
	startTime := time.Now()

	log, closeLog, err := newLogger(out, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	pfts, err := guess.ReadPFTFile(cfg.PFTFile)
	if err != nil {
		return err
	}
	src, err := Sources().New(cfg.Source, cfg.Input)
	if err != nil {
		return err
	}

	d := &guess.GUESS{
		PFTs:                   pfts,
		Climate:                src,
		Diagnostics:            guess.NewDiagnostics(log),
		Metrics:                guess.NewMetrics(),
		FirstYear:              cfg.FirstYear,
		NYears:                 cfg.NYears,
		DisturbanceProbability: cfg.DisturbanceProbability,
	}

	if cfg.MetricsAddress != "" {
		_, stop, err := serveMetrics(cfg.MetricsAddress, d.Metrics, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	var store *checkpoint.Store
	if cfg.CheckpointURL != "" {
		store, err = checkpoint.Open(ctx, cfg.CheckpointURL)
		if err != nil {
			return err
		}
		defer store.Close()
		store.Log = log
	}

	if cfg.Restore {
		d.InitFuncs = []guess.DomainManipulator{restoreOrSetup(ctx, store, cfg.CheckpointRank, &cfg.Grid, log)}
	} else {
		d.InitFuncs = []guess.DomainManipulator{guess.SetupGridcells(&cfg.Grid)}
	}

	d.RunFuncs = []guess.DomainManipulator{guess.Daily(), guess.EndOfYear(), guess.Log(log)}
	if cfg.OutputFile != "" {
		o, err := guess.NewOutputter(cfg.OutputFile, cfg.Grid.GridProj, cfg.OutputVariables, nil)
		if err != nil {
			return err
		}
		d.RunFuncs = append(d.RunFuncs, o.Output())
	}
	if cfg.PatchFile != "" {
		f, err := os.Create(cfg.PatchFile)
		if err != nil {
			return fmt.Errorf("guess: problem creating patch file: %v", err)
		}
		defer f.Close()
		d.RunFuncs = append(d.RunFuncs, guess.PatchReport(f))
	}
	d.RunFuncs = append(d.RunFuncs, guess.AdvanceDay())
	if store != nil {
		d.RunFuncs = append(d.RunFuncs, checkpoint.Save(ctx, store, cfg.CheckpointRank, cfg.CheckpointInterval))
	}

	log.WithFields(logrus.Fields{
		"source":    cfg.Source,
		"gridcells": len(cfg.Grid.Lon),
		"pfts":      pfts.Names(),
		"firstYear": cfg.FirstYear,
		"years":     cfg.NYears,
	}).Info("initializing model")
	if err = d.Init(); err != nil {
		return fmt.Errorf("guess: problem initializing model: %v", err)
	}
	if d.Year != cfg.FirstYear || d.Day != 0 {
		log.WithFields(logrus.Fields{"year": d.Year, "day": d.Day}).Info("resuming simulation")
	}
	if err = d.Run(); err != nil {
		return fmt.Errorf("guess: problem running simulation: %v", err)
	}
	if err = d.Cleanup(); err != nil {
		return fmt.Errorf("guess: problem shutting down model: %v", err)
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Millisecond)).Info("simulation complete")
	return nil
}
