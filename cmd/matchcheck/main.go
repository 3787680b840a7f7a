package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-matchd/internal/matchclient"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/urfave/cli/v3"
)

// matchcheck drives a running matchd: two synthetic players join, open
// streams, white plays e2e4, and every received event is printed.
func main() {
	cmd := &cli.Command{
		Name:  "matchcheck",
		Usage: "smoke-test a running matchd",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "matchd base URL", Sources: cli.EnvVars("MATCHD_URL")},
			&cli.DurationFlag{Name: "timeout", Value: 8 * time.Second, Usage: "per-request timeout"},
			&cli.DurationFlag{Name: "observe", Value: 2 * time.Second, Usage: "how long to print events after the move"},
			&cli.StringFlag{Name: "prefix", Value: "check", Usage: "player id prefix"},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	prefix := cmd.String("prefix")
	players := []string{prefix + "-w-" + suffix, prefix + "-b-" + suffix}

	client := matchclient.New(cmd.String("url"), cmd.Duration("timeout"))

	streams := make([]*matchclient.Stream, 0, len(players))
	for _, p := range players {
		u, err := client.StreamURL(p)
		if err != nil {
			return fmt.Errorf("stream url: %w", err)
		}
		s := matchclient.NewStream(u)
		who := p
		s.OnStateChange(func(state matchclient.StreamState) {
			log.Printf("stream %s: %s", who, state)
		})
		s.OnEvent(func(ev gamedto.Event) {
			fmt.Printf("event player=%s type=%s payload=%s\n", who, ev.Type, string(ev.Payload))
		})
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = s.Connect(cctx)
		cancel()
		if err != nil {
			return fmt.Errorf("stream connect %s: %w", p, err)
		}
		streams = append(streams, s)
	}
	defer func() {
		for _, s := range streams {
			cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = s.Close(cctx)
			cancel()
		}
	}()
	// let both subscriptions settle before matching
	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	for _, p := range players {
		res, err := client.Join(ctx, p)
		if err != nil {
			return fmt.Errorf("join %s: %w", p, err)
		}
		log.Printf("join %s: status=%s game=%s color=%s", p, res.Status, res.GameID, res.Color)
	}

	mv, err := client.Move(ctx, players[0], gamedto.Move{From: "e2", To: "e4"})
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	log.Printf("move ok: turn=%s board=%s", mv.Turn, mv.Board)

	view, err := client.State(ctx, players[1])
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	log.Printf("state: game=%s version=%d history=%d", view.GameID, view.Version, len(view.History))

	// Observe for a short window
	t := time.NewTimer(cmd.Duration("observe"))
	<-t.C
	return nil
}
