package app

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the prompt loop needs. App satisfies
// it; tests use a stub.
type execIface interface {
	NewReport(ctx context.Context) error
	AddNote(ctx context.Context) error
	AttachFile(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	Delete(ctx context.Context) error
	Sync(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
	Queue(ctx context.Context) error
	Failed(ctx context.Context) error
	Retry(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
}

// runREPL reads commands line by line and dispatches them. Handlers log
// their own errors; the loop stays up until EOF or exit.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	printlnFn("Field Reporter (type 'help' for commands)")

	for {
		printlnFn(fmt.Sprintf("fr %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn("Available commands: newreport, addnote, attach, (l)ist, show, delete, sync, conflicts, resolve <id> local|remote, queue, failed, retry <id>, cancel <id>, exit")

		case "newreport":
			_ = a.NewReport(ctx)

		case "addnote":
			_ = a.AddNote(ctx)

		case "attach":
			_ = a.AttachFile(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "show":
			_ = a.Show(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "conflicts":
			_ = a.Conflicts(ctx)

		case "resolve":
			_ = a.Resolve(ctx, args)

		case "queue":
			_ = a.Queue(ctx)

		case "failed":
			_ = a.Failed(ctx)

		case "retry":
			_ = a.Retry(ctx, args)

		case "cancel":
			_ = a.Cancel(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
