// Package checkout materializes a source-control checkout for the repo
// launcher by shelling out to the system git binary, the way the rest of
// this codebase's git integration works rather than by vendoring a
// from-scratch git implementation.
package checkout

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Request describes what to check out and where to find the entry file
// afterward.
type Request struct {
	RepoURL      string // clone source; may be a local path or a remote URL
	Ref          string // branch, tag, or commit; defaults to the remote HEAD
	DestDir      string // target directory for the clone
	SrcSubfolder string // subfolder within the checkout holding the entry file
	FileToRun    string // entry file name, relative to SrcSubfolder
	// UseLocal skips cloning or fetching entirely and runs directly against
	// whatever is already on disk at DestDir, only verifying the entry file.
	UseLocal bool
}

// CheckoutError wraps a failed checkout or verification step.
type CheckoutError struct {
	Msg string
	Err error
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("checkout error: %s", e.Msg)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// Run clones (or fetches and resets an existing clone of) Request.RepoURL
// into Request.DestDir at Request.Ref, then verifies that
// SrcSubfolder/FileToRun exists in the result. It returns the absolute path
// to the entry file.
func Run(req Request) (string, error) {
	if req.DestDir == "" {
		return "", &CheckoutError{Msg: "destination directory is required"}
	}

	if req.UseLocal {
		if _, err := os.Stat(req.DestDir); err != nil {
			return "", &CheckoutError{Msg: fmt.Sprintf("use-local workdir %s does not exist", req.DestDir), Err: err}
		}
	} else {
		if req.RepoURL == "" {
			return "", &CheckoutError{Msg: "repo url is required"}
		}
		if _, err := os.Stat(filepath.Join(req.DestDir, ".git")); err == nil {
			if err := fetchAndReset(req); err != nil {
				return "", err
			}
		} else {
			if err := clone(req); err != nil {
				return "", err
			}
		}
	}

	entryPath := filepath.Join(req.DestDir, req.SrcSubfolder, req.FileToRun)
	if _, err := os.Stat(entryPath); err != nil {
		return "", &CheckoutError{
			Msg: fmt.Sprintf("entry file %s not found in checkout", filepath.Join(req.SrcSubfolder, req.FileToRun)),
			Err: err,
		}
	}
	return entryPath, nil
}

func clone(req Request) error {
	args := []string{"clone", req.RepoURL, req.DestDir}
	if err := runGit("", args...); err != nil {
		return &CheckoutError{Msg: "git clone failed", Err: err}
	}
	if req.Ref != "" {
		if err := runGit(req.DestDir, "checkout", req.Ref); err != nil {
			return &CheckoutError{Msg: fmt.Sprintf("git checkout %s failed", req.Ref), Err: err}
		}
	}
	return nil
}

func fetchAndReset(req Request) error {
	if err := runGit(req.DestDir, "fetch", "--all"); err != nil {
		return &CheckoutError{Msg: "git fetch failed", Err: err}
	}
	ref := req.Ref
	if ref == "" {
		ref = "origin/HEAD"
	}
	if err := runGit(req.DestDir, "reset", "--hard", ref); err != nil {
		return &CheckoutError{Msg: fmt.Sprintf("git reset --hard %s failed", ref), Err: err}
	}
	return nil
}

func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
