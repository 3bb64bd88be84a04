package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/GophBank/internal/models"
)

// Prompter reads answers line by line for the interactive shell.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	done    bool
}

// NewPrompter returns a Prompter reading from in and printing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the trimmed answer. It returns "" on EOF.
func (p *Prompter) Ask(label string) string {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		p.done = true
		return ""
	}
	return strings.TrimSpace(p.scanner.Text())
}

// Done reports whether the input is exhausted.
func (p *Prompter) Done() bool {
	return p.done
}

// PromptDetails asks for every personal field. When prev is non-nil an
// empty answer keeps the previous value, so a rejected form can be fixed
// field by field when the caller passes the last attempt back in.
func (p *Prompter) PromptDetails(prev *models.PersonalDetails) models.PersonalDetails {
	var d models.PersonalDetails
	if prev != nil {
		d = *prev
	}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Full name", &d.FullName},
		{"Father's name", &d.FatherName},
		{"Mobile (10 digits)", &d.Mobile},
		{"Date of birth (YYYY-MM-DD)", &d.DOB},
		{"Address", &d.Address},
		{"Aadhaar (12 digits)", &d.Aadhaar},
		{"PAN (AAAAA9999A)", &d.PAN},
		{"State", &d.State},
		{"Branch", &d.Branch},
	}
	for _, f := range fields {
		label := f.label + ": "
		if *f.dst != "" {
			label = fmt.Sprintf("%s [%s]: ", f.label, *f.dst)
		}
		if answer := p.Ask(label); answer != "" {
			*f.dst = answer
		}
	}
	d.PAN = strings.ToUpper(d.PAN)
	return d
}

// PromptKYCFiles asks for the path of each KYC image and reads it.
// Unreadable files are reported and left nil, so the workflow can name
// what is missing.
func (p *Prompter) PromptKYCFiles() models.KYCDocuments {
	var docs models.KYCDocuments
	for _, d := range models.DocumentTypes {
		path := p.Ask(fmt.Sprintf("%s image path: ", d.Label()))
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(p.out, "Failed to read file %q: %v\n", path, err)
			continue
		}
		f := &models.KYCFile{Filename: filepath.Base(path), Data: data}
		switch d {
		case models.ProfileDocument:
			docs.Profile = f
		case models.AadhaarDocument:
			docs.Aadhaar = f
		case models.PANDocument:
			docs.PAN = f
		}
	}
	return docs
}
