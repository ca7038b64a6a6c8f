//go:build mage
// +build mage

package main

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/mholt/archiver"
)

var (
	executableName = "history"
	outputPath     = "dist"
	platforms      = []Platform{
		{OS: "linux", Arch: "amd64", ArchiveType: ".tar.gz"},
		{OS: "linux", Arch: "arm64", ArchiveType: ".tar.gz"},
		{OS: "darwin", Arch: "arm64", ArchiveType: ".tar.gz"},
		{OS: "windows", Arch: "amd64", BinarySuffix: ".exe", ArchiveType: ".zip"},
	}
	// Shipped next to the binary so templates can be overridden in place.
	extraFiles = []string{"templates"}
)

var goexe = "go"

// Generate bundles the static stylesheet and script.
func Generate() error {
	fmt.Printf("Bundling static resources\n")
	return sh.RunV(goexe, "generate", ".")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV(goexe, "test", "./...")
}

// Integration runs the tests that need a database server, configured with
// HISTORY_TEST_POSTGRES.
func Integration() error {
	if os.Getenv("HISTORY_TEST_POSTGRES") == "" {
		return fmt.Errorf("HISTORY_TEST_POSTGRES is not set")
	}
	return sh.RunV(goexe, "test", "-tags", "integration", "./eventlog/...")
}

// Build compiles a binary for every release platform.
func Build() error {
	mg.Deps(Generate)
	fmt.Printf("Compiling binaries\n")

	buildTime, err := getBuildtime("HEAD")
	if err != nil {
		return err
	}
	version, err := getTag()
	if err != nil {
		return err
	}
	if err := sh.Run(goexe, "mod", "download"); err != nil {
		return err
	}

	env := map[string]string{"CGO_ENABLED": "0"}
	for _, platform := range platforms {
		output := platform.binaryPath(version)
		env["GOOS"] = platform.OS
		env["GOARCH"] = platform.Arch
		if err := sh.RunWithV(env, goexe, buildFlags(version, output)...); err != nil {
			log.Printf("Error building %s/%s: %s", platform.OS, platform.Arch, err.Error())
			continue
		}
		if err := os.Chtimes(output, *buildTime, *buildTime); err != nil {
			return err
		}
	}
	return nil
}

// Notices collects the licenses of all dependencies.
func Notices() error {
	fmt.Printf("Getting licenses\n")
	buildTime, err := getBuildtime("HEAD")
	if err != nil {
		return err
	}
	noticesPath := filepath.Join(outputPath, "notices")
	err = sh.Run(goexe, "run", "github.com/google/go-licenses@v1.6.0", "save", "./...", fmt.Sprintf("--save_path=%s", noticesPath), "--force")
	if err != nil {
		return err
	}
	return filepath.WalkDir(noticesPath, setTimeFunc(*buildTime))
}

// Archive packages each binary with the notices and templates.
func Archive() error {
	mg.Deps(Build, Notices)
	fmt.Printf("Creating archives\n")
	version, err := getTag()
	if err != nil {
		return err
	}
	for _, platform := range platforms {
		files := append([]string{platform.binaryPath(version), filepath.Join(outputPath, "notices")}, extraFiles...)
		target := strings.TrimSuffix(platform.binaryPath(version), platform.BinarySuffix) + platform.ArchiveType
		if err := archiver.Archive(files, target); err != nil {
			log.Printf("Error archiving %s/%s: %s", platform.OS, platform.Arch, err.Error())
		}
	}
	return nil
}

// Clean removes build output.
func Clean() error {
	return os.RemoveAll(outputPath)
}

func buildFlags(version, output string) []string {
	return []string{
		"build",
		"-trimpath",
		"-ldflags=" + strings.Join([]string{"-s", "-w", fmt.Sprintf(`-X "main.version=%s"`, version)}, " "),
		"-o", output,
		".",
	}
}

func setTimeFunc(buildTime time.Time) func(path string, info fs.DirEntry, err error) error {
	return func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chtimes(path, buildTime, buildTime)
	}
}

func getBuildtime(commit string) (*time.Time, error) {
	var err error
	envBuildtime := os.Getenv("BUILDTIME")
	if envBuildtime == "" {
		envBuildtime, err = sh.Output("git", "show", "-s", "--format=%ci", commit)
		if err != nil {
			return nil, err
		}
	}
	buildTime, err := time.Parse("2006-01-02 15:04:05 -0700", envBuildtime)
	if err != nil {
		return nil, err
	}
	return &buildTime, nil
}

// getTag returns the version described by the latest tag, without the
// leading "v" so that it parses as a semantic version.
func getTag() (string, error) {
	s, err := sh.Output("git", "describe", "--tags")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(s, "v"), nil
}

type Platform struct {
	OS           string
	Arch         string
	BinarySuffix string
	ArchiveType  string
}

func (p Platform) binaryPath(version string) string {
	name := fmt.Sprintf("%s_%s_%s_%s%s", executableName, p.OS, p.Arch, version, p.BinarySuffix)
	return filepath.Join(outputPath, name)
}
