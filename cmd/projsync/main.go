package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/projsync/internal/cli"
	"github.com/dmitrijs2005/projsync/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	err = app.Run(ctx, os.Args[1:])
	_ = app.Close()
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
