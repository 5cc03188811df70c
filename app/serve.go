package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-pkgz/repeater"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/sms-spam/app/dataset"
	"github.com/umputun/sms-spam/app/service"
	"github.com/umputun/sms-spam/app/storage"
	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/app/webapi"
)

// runServer loads the model and runs web server until context canceled.
// With reload enabled the artifact file is watched and the model swapped on change.
func runServer(ctx context.Context, cmd serverCmd) error {
	normalizer, err := makeNormalizer(cmd.Normalizer)
	if err != nil {
		return err
	}

	policy := service.LoadOnce
	if cmd.Reload {
		policy = service.ReloadOnChange
	}
	predictor := service.NewPredictor(service.Params{ModelFile: cmd.Model, Normalizer: normalizer, Policy: policy,
		CacheSize: cmd.Cache.Size, CacheTTL: cmd.Cache.TTL})
	if err = predictor.Load(); err != nil {
		return fmt.Errorf("can't load model: %w", err)
	}
	log.Printf("[INFO] model policy %s, cache size %d, ttl %v", predictor.Policy(), cmd.Cache.Size, cmd.Cache.TTL)

	if cmd.AuthPasswd == "auto" {
		if cmd.AuthPasswd, err = webapi.GenerateRandomPassword(20); err != nil {
			return fmt.Errorf("can't generate random password: %w", err)
		}
		log.Printf("[WARN] generated basic auth password for user sms-spam: %q", cmd.AuthPasswd)
	}

	srvCfg := webapi.Config{Version: revision, ListenAddr: cmd.ListenAddr, Predictor: predictor,
		AuthPasswd: cmd.AuthPasswd, RateLimit: cmd.RateLimit}

	if cmd.DBURL != "" {
		db, dbErr := connectDB(ctx, cmd)
		if dbErr != nil {
			return dbErr
		}
		defer db.Close()
		history, hErr := storage.NewPredictions(ctx, db)
		if hErr != nil {
			return fmt.Errorf("can't make predictions storage: %w", hErr)
		}
		srvCfg.History = history
	}

	if cmd.Feedback != "" {
		srvCfg.Feedback = dataset.NewAppender(cmd.Feedback)
		log.Printf("[INFO] feedback samples stored in %s", cmd.Feedback)
	}

	predLog, err := makePredictionLogWriter(cmd)
	if err != nil {
		return fmt.Errorf("can't make predictions log writer: %w", err)
	}
	defer predLog.Close()
	if cmd.Logger.Enabled {
		srvCfg.PredictionLog = predLog
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webapi.NewServer(srvCfg).Run(gctx)
	})
	if predictor.Policy() == service.ReloadOnChange {
		g.Go(func() error {
			return predictor.Watch(gctx)
		})
	}
	if err = g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// connectDB connects to the history database, retrying until it is available or timeout reached
func connectDB(ctx context.Context, cmd serverCmd) (*engine.SQL, error) {
	ctx, cancel := context.WithTimeout(ctx, cmd.Timeout)
	defer cancel()

	var db *engine.SQL
	err := repeater.NewDefault(10, time.Second).Do(ctx, func() error {
		res, err := engine.New(ctx, cmd.DBURL, cmd.InstanceID)
		if err != nil {
			log.Printf("[WARN] can't connect to database: %v", err)
			return err
		}
		db = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}
	log.Printf("[INFO] prediction history in %s database, instance %s", db.Type(), db.GID())
	return db, nil
}
