package main

import (
	"fmt"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/axiomesh/axiom-kit/log"
	custodian "github.com/protocol-bank/custodian"
	"github.com/protocol-bank/custodian/core"
	"github.com/protocol-bank/custodian/repo"
	"github.com/urfave/cli/v2"
)

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	executor, err := buildExecutor(ctx, r.Config)
	if err != nil {
		return fmt.Errorf("build executor: %w", err)
	}

	node, err := core.NewCustodian(ctx.Context, r.Config, executor)
	if err != nil {
		return fmt.Errorf("new custodian error: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(node, &wg)

	if err := node.Start(); err != nil {
		return fmt.Errorf("start custodian failed: %w", err)
	}

	fmt.Println("=============Custodian is ready=============")

	wg.Wait()

	return nil
}

func buildExecutor(ctx *cli.Context, config *repo.Config) (core.Executor, error) {
	switch config.Executor.Type {
	case "eth":
		logger := log.New()
		logger.SetLevel(log.ParseLevel(config.Log.Level))
		return core.NewEthExecutor(
			ctx.Context,
			config.DialUrl,
			config.Executor.PrivateKey,
			config.ChainID,
			config.Executor.Tokens,
			logger,
		)
	case "mock", "":
		return &core.MockExecutor{}, nil
	default:
		return nil, fmt.Errorf("unknown executor type: %s", config.Executor.Type)
	}
}

func printVersion() {
	fmt.Printf("Custodian version: %s-%s-%s\n", custodian.CurrentVersion, custodian.CurrentBranch, custodian.CurrentCommit)
	fmt.Printf("App build date: %s\n", custodian.BuildDate)
	fmt.Printf("System version: %s\n", custodian.Platform)
	fmt.Printf("Golang version: %s\n", custodian.GoVersion)
	fmt.Println()
}

func handleShutdown(node *core.Custodian, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := node.Stop(); err != nil {
			panic(err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
