// Command chat is a local console for exercising the assistant without an
// HTTP server: it loads the clinic dataset, wires an in-memory store, and
// relays stdin lines through the dialogue machine.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/letsdeepchat/MedAppAuto/internal/assistant"
	"github.com/letsdeepchat/MedAppAuto/internal/availability"
	"github.com/letsdeepchat/MedAppAuto/internal/clinicdata"
	appconfig "github.com/letsdeepchat/MedAppAuto/internal/config"
	"github.com/letsdeepchat/MedAppAuto/internal/dialogue"
	"github.com/letsdeepchat/MedAppAuto/internal/knowledge"
	"github.com/letsdeepchat/MedAppAuto/internal/schedule"
	"github.com/letsdeepchat/MedAppAuto/internal/session"
	"github.com/letsdeepchat/MedAppAuto/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New("warn")

	data, err := clinicdata.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("load clinic dataset: %v", err)
	}

	ctx := context.Background()
	engine := availability.NewEngine(data, schedule.NewMemoryStore(), logger)

	kb := knowledge.NewBase(logger)
	if cfg.GeminiAPIKey != "" {
		if embedder, err := knowledge.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModelID); err == nil {
			kb = knowledge.NewBase(logger, knowledge.WithEmbedder(embedder))
			fmt.Println("(semantic FAQ retrieval enabled)")
		}
	}
	if err := kb.Add(ctx, knowledge.DeriveEntries(data)); err != nil {
		log.Printf("knowledge indexing degraded: %v", err)
	}

	var machineOpts []dialogue.MachineOption
	if cfg.GeminiAPIKey != "" {
		if llm, err := dialogue.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID); err == nil {
			defer func() { _ = llm.Close() }()
			machineOpts = append(machineOpts, dialogue.WithClassifier(dialogue.NewLLMIntentClassifier(llm)))
			fmt.Println("(gemini intent classifier enabled)")
		}
	}
	machine := dialogue.NewMachine(data, engine, kb, logger, machineOpts...)
	sessions := session.NewRegistry(logger)
	svc := assistant.NewService(logger, machine, sessions, engine, kb)

	fmt.Printf("%s scheduling assistant. Type a message, or \"quit\" to exit.\n\n", data.Clinic.Name)

	sessionID := ""
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		reply := svc.HandleMessage(ctx, sessionID, line)
		sessionID = reply.SessionID
		fmt.Printf("\nassistant> %s\n\n", reply.Text)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read stdin: %v", err)
	}
}
