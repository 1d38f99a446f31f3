// Command yawlengine loads a net specification, launches one case against
// it, and drives that case interactively from stdin. It exists to
// exercise the engine façade end to end, not as a production server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"goa.design/clue/log"
	"gopkg.in/yaml.v3"

	"github.com/yawlgo/engine/engine"
	"github.com/yawlgo/engine/engine/store/memory"
	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/runner"
	"github.com/yawlgo/engine/telemetry"
	"github.com/yawlgo/engine/workitem"
)

func main() {
	var (
		specF   = flag.String("spec", "", "path to a YAML net specification (required)")
		netIDF  = flag.String("net", "", "net id to launch against (defaults to the loaded spec's id)")
		caseF   = flag.String("case", "demo-case", "case id to launch")
		dataF   = flag.String("data", "{}", "initial case data document, as JSON")
		debugF  = flag.Bool("debug", false, "log request detail")
		recoveF = flag.Bool("recover", false, "run crash recovery against the store before launching")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *debugF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if *specF == "" {
		log.Fatal(ctx, fmt.Errorf("-spec is required"))
	}

	e, err := engine.New(engine.Config{
		Store:  memory.New(),
		Logger: telemetry.NewClueLogger(),
	})
	if err != nil {
		log.Fatal(ctx, err)
	}

	// An "echo" codelet answers any automated task whose profile names it,
	// so a demo spec can exercise automated routing without a real service.
	e.Router().RegisterCodelet("echo", func(_ context.Context, it *workitem.Item) (json.RawMessage, error) {
		return it.InputData, nil
	})

	raw, err := loadSpec(*specF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	n, warnings, err := e.LoadSpecification(ctx, raw)
	if err != nil {
		log.Fatal(ctx, err)
	}
	for _, w := range warnings {
		log.Print(ctx, log.KV{K: "warning", V: fmt.Sprintf("%s: %s", w.TaskID, w.Message)})
	}

	if *recoveF {
		if err := e.Recover(ctx); err != nil {
			log.Fatal(ctx, err)
		}
	}

	netID := *netIDF
	if netID == "" {
		netID = n.ID
	}

	c, err := e.LaunchCase(ctx, *caseF, netID, json.RawMessage(*dataF))
	if err != nil && c == nil {
		log.Fatal(ctx, err)
	}
	if err != nil {
		log.Print(ctx, log.KV{K: "launch-warning", V: err.Error()})
	}
	log.Printf(ctx, "launched case %q against net %q", *caseF, netID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		fmt.Println("\nexiting")
		os.Exit(0)
	}()

	repl(ctx, e, *caseF)
}

func loadSpec(path string) (net.RawSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return net.RawSpec{}, fmt.Errorf("read spec: %w", err)
	}
	var raw net.RawSpec
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return net.RawSpec{}, fmt.Errorf("parse spec: %w", err)
	}
	return raw, nil
}

// repl is a minimal line-oriented console for driving a case by hand:
//
//	list                       list the case's live work items
//	start <item-id> <handler>  move a work item to Executing
//	complete <item-id> [json]  complete a work item with the given output
//	suspend <item-id>
//	resume <item-id>
//	marking                    print the current token marking
//	quit
func repl(ctx context.Context, e *engine.Engine, caseID string) {
	fmt.Println("type 'help' for commands, 'quit' to exit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Println("list | start <item> <handler> | complete <item> [json] | suspend <item> | resume <item> | marking | quit")
		case "quit", "exit":
			return
		case "list":
			for _, it := range e.GetLiveWorkItems(ctx, engine.WorkItemFilter{CaseID: caseID}) {
				fmt.Printf("%s  task=%s  status=%s\n", it.ID, it.TaskID, it.Status)
			}
		case "marking":
			m, err := e.InspectMarking(caseID)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for el, n := range m {
				fmt.Printf("%s: %d\n", el, n)
			}
		case "start":
			if len(fields) < 3 {
				fmt.Println("usage: start <item-id> <handler>")
				continue
			}
			if err := e.StartWorkItem(ctx, itemID(fields[1]), fields[2]); err != nil {
				fmt.Println("error:", err)
			}
		case "complete":
			if len(fields) < 2 {
				fmt.Println("usage: complete <item-id> [json]")
				continue
			}
			out := json.RawMessage("{}")
			if len(fields) > 2 {
				out = json.RawMessage(strings.Join(fields[2:], " "))
			}
			if err := e.CompleteWorkItem(ctx, itemID(fields[1]), out, runner.CompleteNormal); err != nil {
				fmt.Println("error:", err)
			}
		case "suspend":
			if len(fields) < 2 {
				fmt.Println("usage: suspend <item-id>")
				continue
			}
			if err := e.SuspendWorkItem(ctx, itemID(fields[1])); err != nil {
				fmt.Println("error:", err)
			}
		case "resume":
			if len(fields) < 2 {
				fmt.Println("usage: resume <item-id>")
				continue
			}
			if err := e.ResumeWorkItem(ctx, itemID(fields[1])); err != nil {
				fmt.Println("error:", err)
			}
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func itemID(s string) workitem.ID { return workitem.ID(s) }
