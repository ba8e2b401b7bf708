package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

// sync runs one sync kind (or all of them) now and prints the recorded runs.
func (cli *commandLine) sync(kind string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	kinds := []string{kind}
	if kind == "all" {
		kinds = cli.recorder.Kinds()
	}

	var failed error
	for _, k := range kinds {
		run, err := cli.recorder.Run(ctx, k)
		if run.ID == "" {
			return err
		}
		fmt.Printf("%s sync %s: %d created, %d updated, %d skipped, %d failed\n",
			run.Kind, run.Status, run.Created, run.Updated, run.Skipped, run.Failed)
		for _, e := range run.Errors {
			fmt.Println("  - " + e)
		}
		if err != nil && failed == nil {
			failed = err
		}
	}
	return failed
}
