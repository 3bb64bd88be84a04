package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/atinyakov/GophBank/internal/admin"
	"github.com/atinyakov/GophBank/internal/client/storage"
	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
)

const adminHelp = `Available commands:
  list                               list applications
  docs <id>                          show the KYC images of an application
  verify <id> aadhaar|pan            mark a document as verified
  reject-doc <id> aadhaar|pan <why>  reject an application because of a document
  approve <id>                       approve (Aadhaar and PAN must be verified)
  reject <id> <reason>               reject an application
  exit`

// adminShell is the staff review session.
type adminShell struct {
	reviewer *admin.Reviewer
	prompt   *storage.Prompter
	out      io.Writer
}

func newAdminShell(b admin.Backend, log *zap.Logger, in io.Reader, out io.Writer) *adminShell {
	return &adminShell{
		reviewer: admin.NewReviewer(b, log),
		prompt:   storage.NewPrompter(in, out),
		out:      out,
	}
}

func (s *adminShell) run() {
	ctx := context.Background()
	for {
		line := s.prompt.Ask("gophbank-admin> ")
		if line == "" {
			if s.prompt.Done() {
				return
			}
			continue
		}
		if !s.exec(ctx, strings.Fields(line)) {
			return
		}
	}
}

func (s *adminShell) exec(ctx context.Context, args []string) bool {
	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, adminHelp)
	case "list":
		apps, err := s.reviewer.Refresh(ctx)
		if err != nil {
			fmt.Fprintln(s.out, describe(err))
			return true
		}
		s.printApplications(apps)
	case "docs":
		id, ok := s.id(args, 2, "Usage: docs <id>")
		if !ok {
			return true
		}
		app, err := s.reviewer.Application(ctx, id)
		if err != nil {
			fmt.Fprintln(s.out, describe(err))
			return true
		}
		for _, img := range s.reviewer.LoadDocuments(ctx, *app) {
			if img.Available() {
				fmt.Fprintf(s.out, "%s: %s, %d bytes\n", img.Type.Label(), img.ContentType, len(img.Data))
			} else {
				fmt.Fprintf(s.out, "%s: not available\n", img.Type.Label())
			}
		}
	case "approve":
		if id, ok := s.id(args, 2, "Usage: approve <id>"); ok {
			s.apply(ctx, id, admin.Action{Kind: admin.ActionApprove})
		}
	case "reject":
		if id, ok := s.id(args, 3, "Usage: reject <id> <reason>"); ok {
			s.apply(ctx, id, admin.Action{Kind: admin.ActionReject, Reason: strings.Join(args[2:], " ")})
		}
	case "verify":
		if id, ok := s.id(args, 3, "Usage: verify <id> aadhaar|pan"); ok {
			s.apply(ctx, id, admin.Action{Kind: admin.ActionApproveDocument, Document: models.DocumentType(args[2])})
		}
	case "reject-doc":
		if id, ok := s.id(args, 4, "Usage: reject-doc <id> aadhaar|pan <reason>"); ok {
			s.apply(ctx, id, admin.Action{
				Kind:     admin.ActionRejectDocument,
				Document: models.DocumentType(args[2]),
				Reason:   strings.Join(args[3:], " "),
			})
		}
	case "exit":
		fmt.Fprintln(s.out, "Bye")
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}
	return true
}

func (s *adminShell) id(args []string, want int, usage string) (int64, bool) {
	if len(args) < want {
		fmt.Fprintln(s.out, usage)
		return 0, false
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(s.out, usage)
		return 0, false
	}
	return id, true
}

func (s *adminShell) apply(ctx context.Context, id int64, a admin.Action) {
	res, err := s.reviewer.Apply(ctx, id, a)
	if res != nil && res.Message != "" {
		fmt.Fprintln(s.out, res.Message)
	}
	if err != nil {
		fmt.Fprintln(s.out, describe(err))
		return
	}
	if res.Application != nil {
		s.printApplications([]models.ApplicationRecord{*res.Application})
	}
}

func (s *adminShell) printApplications(apps []models.ApplicationRecord) {
	if len(apps) == 0 {
		fmt.Fprintln(s.out, "No applications")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tAADHAAR\tPAN\tAPPROVABLE")
	for _, app := range apps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			app.ID, app.FullName, app.Status,
			mark(app.AadhaarVerified), mark(app.PANVerified), mark(admin.CanApprove(app)))
	}
	tw.Flush()
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
