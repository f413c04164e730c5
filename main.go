package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/auroilion/roilion/contact"
	gcontext "github.com/gorilla/context"
	"github.com/haydenwoodhead/gateway"
)

var runSweep bool

func init() {
	flag.BoolVar(&runSweep, "sweep-expired", false, "when true will not run the server only delete expired rate limit buckets")
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := mustParseApp(ctx)

	// if we are just sweeping then do so and return. Otherwise sweep in a goroutine
	if runSweep {
		runSweepFunc(ctx, a)
		return
	}

	s, err := contact.New(a.server)
	if err != nil {
		log.Fatalf("Failed to setup contact server: %v", err)
	}

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				log.Printf("Spam rules watcher stopped: %v", err)
			}
		}()
	}

	go func(a app) {
		if a.server.UsingLambda {
			runSweepFunc(ctx, a)
			return
		}

		t := time.NewTicker(a.window)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				runSweepFunc(ctx, a)
			}
		}
	}(a)

	if a.server.UsingLambda {
		log.Fatal(gateway.ListenAndServe("", gcontext.ClearHandler(s.Router))) // wrap mux in ClearHandler as per docs to prevent leaking memory
	}

	srv := &http.Server{
		Addr:              a.listenAddr,
		Handler:           gcontext.ClearHandler(s.Router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Printf("Shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("Failed to shut down cleanly: %v", err)
		}
	}()

	log.Printf("Listening on %v", a.listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func runSweepFunc(ctx context.Context, a app) {
	if a.sweep == nil {
		return
	}

	count, err := a.sweep(ctx)
	if err != nil {
		log.Printf("Failed to delete expired buckets: %v", err)
		return
	}

	if count > 0 {
		log.Printf("Deleted %v expired buckets", count)
	}
}
