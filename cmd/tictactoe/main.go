package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tictactoe/internal/app"
	appmatch "tictactoe/internal/app/match"
	"tictactoe/internal/app/matchmaking"
	"tictactoe/internal/app/meta"
	"tictactoe/internal/app/session"
	"tictactoe/internal/clock"
	"tictactoe/internal/config"
	"tictactoe/internal/domain"
	"tictactoe/internal/ports/nakama"
	"tictactoe/internal/store"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	settings, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal("settings store", zap.Error(err))
	}

	bus := app.NewBus(logger)
	api := nakama.NewApiClient(cfg, logger)
	socket := nakama.NewSocket(cfg, logger)

	sessions := session.NewService(api, socket, settings, bus, logger)
	matches := appmatch.NewService(socket, api, settings, sessions, bus, clock.New(), logger)
	search := matchmaking.NewService(socket, bus, logger, func(ctx context.Context, matchID string) error {
		return matches.JoinByID(ctx, matchID)
	})
	info := meta.NewService(api, logger)

	ctx := context.Background()

	go printEvents(bus, sessions, matches)

	if ok, err := sessions.AutoConnect(ctx); ok && err != nil {
		fmt.Println("auto-connect failed:", err)
	}
	if hint := matches.ResumeHint(); hint != "" {
		fmt.Println("last match:", hint, "(use: join", hint+")")
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: connect <name> | search [classic|timed] | cancel | create | join <id> | move <0-8> | board | rematch | leave | stats | top | logout | quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "connect":
			if len(fields) < 2 {
				fmt.Println("usage: connect <name>")
				continue
			}
			report(sessions.Connect(ctx, strings.Join(fields[1:], " ")))
		case "search":
			mode := domain.ModeClassic
			if len(fields) > 1 && fields[1] == string(domain.ModeTimed) {
				mode = domain.ModeTimed
			}
			report(search.StartSearch(ctx, mode))
		case "cancel":
			report(search.CancelSearch(ctx))
		case "create":
			report(matches.CreateAndJoin(ctx))
		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <id>")
				continue
			}
			report(matches.JoinByID(ctx, fields[1]))
		case "move":
			if len(fields) < 2 {
				fmt.Println("usage: move <0-8>")
				continue
			}
			cell, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: move <0-8>")
				continue
			}
			report(matches.SubmitMove(ctx, cell))
		case "board":
			printBoard(sessions, matches)
		case "rematch":
			report(matches.RequestRematch(ctx))
		case "leave":
			matches.Leave(ctx)
		case "stats":
			if st, err := info.Stats(ctx, sessions.Token()); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Printf("wins %d  losses %d  draws %d\n", st.Wins, st.Losses, st.Draws)
			}
		case "top":
			board, err := info.Leaderboard(ctx, sessions.Token(), 10)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, e := range board.Entries {
				fmt.Printf("%3d. %-20s %dW %dL %dD\n", e.Rank, e.DisplayName, e.Wins, e.Losses, e.Draws)
			}
		case "logout":
			sessions.Logout()
		case "quit", "exit":
			sessions.Logout()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
	}
}

func printEvents(bus *app.Bus, sessions *session.Service, matches *appmatch.Service) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case app.EventConnState:
			fmt.Println("\n[conn]", ev.ConnState)
		case app.EventSearching:
			if ev.Searching {
				fmt.Println("\n[search] looking for an opponent...")
			} else {
				fmt.Println("\n[search] stopped")
			}
		case app.EventMatchJoined:
			fmt.Println("\n[match] joined", ev.MatchID, "- waiting for state")
		case app.EventStateUpdated:
			fmt.Println()
			renderState(ev.State, sessions.UserID(), matches)
		case app.EventMatchLeft:
			fmt.Println("\n[match] left")
		case app.EventTurnTick:
			fmt.Printf("\r[timer] %ds left ", int(ev.Remaining.Seconds()))
		case app.EventTransientError:
			fmt.Printf("\n[%s] %s\n", ev.Err.Origin, ev.Err.Message)
		}
	}
}

func printBoard(sessions *session.Service, matches *appmatch.Service) {
	st := matches.State()
	if st == nil {
		fmt.Println("no match state")
		return
	}
	renderState(st, sessions.UserID(), matches)
}

func renderState(st *domain.MatchState, userID string, matches *appmatch.Service) {
	if st == nil {
		return
	}
	for row := 0; row < 3; row++ {
		cells := make([]string, 3)
		for col := 0; col < 3; col++ {
			m := st.Board[row*3+col]
			if m == domain.MarkEmpty {
				cells[col] = strconv.Itoa(row*3 + col)
			} else {
				cells[col] = string(m)
			}
		}
		fmt.Println(" " + strings.Join(cells, " | "))
	}

	if !st.IsFinished {
		switch {
		case st.Opponent(userID) == nil:
			fmt.Println("waiting for another player to join...")
		case st.NextTurnUserID == userID:
			fmt.Println("your turn")
		default:
			fmt.Println("opponent's turn")
		}
		return
	}

	switch matches.Outcome() {
	case domain.OutcomeDraw:
		fmt.Println("it's a draw")
	case domain.OutcomeWinByForfeit:
		fmt.Println("opponent left, you win!")
	case domain.OutcomeWinOnTime:
		fmt.Println("opponent ran out of time, you win!")
	case domain.OutcomeLossOnTime:
		fmt.Println("you ran out of time, you lose")
	case domain.OutcomeWin:
		fmt.Println("you win!")
	case domain.OutcomeLoss:
		fmt.Println("you lost")
	default:
		fmt.Println("game over")
	}
}
