package image

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/pkg/errors"
)

// Expectation lists the properties a built image must hold.
type Expectation struct {
	User    string
	UID     int
	GID     int
	Home    string
	Removed []string
}

func ExpectationFor(s Spec) Expectation {
	return Expectation{
		User:    s.Username,
		UID:     s.UID,
		GID:     s.GID,
		Home:    s.Home(),
		Removed: s.InstalledFiles(),
	}
}

// VerificationError lists every property the image violates.
type VerificationError struct {
	Violations []string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("image verification failed: %s", strings.Join(e.Violations, "; "))
}

// Verify checks the image stored as a tarball at p, as produced by
// "docker save".
func Verify(p string, exp Expectation) error {
	img, err := tarball.ImageFromPath(p, nil)
	if err != nil {
		return errors.Wrapf(err, "open image %s", p)
	}

	return VerifyImage(img, exp)
}

// VerifyImage checks img against exp. It returns a *VerificationError when at
// least one property does not hold.
func VerifyImage(img v1.Image, exp Expectation) error {
	cfg, err := img.ConfigFile()
	if err != nil {
		return errors.Wrap(err, "read image config")
	}

	var violations []string
	if cfg.Config.User != exp.User && cfg.Config.User != strconv.Itoa(exp.UID) {
		violations = append(violations, fmt.Sprintf("default user is %q, want %q", cfg.Config.User, exp.User))
	}
	env := envMap(cfg.Config.Env)
	if home, ok := env["HOME"]; !ok || (exp.Home != "" && home != exp.Home) {
		violations = append(violations, fmt.Sprintf("HOME is %q, want %q", home, exp.Home))
	}
	if shell, ok := env["SHELL"]; !ok || shell == "" {
		violations = append(violations, "SHELL is not set")
	}

	fs, err := scanFilesystem(img, exp)
	if err != nil {
		return err
	}

	uid, gid, found := passwdEntry(fs.passwd, exp.User)
	switch {
	case !found:
		violations = append(violations, fmt.Sprintf("user %q missing from /etc/passwd", exp.User))
	case uid != exp.UID || gid != exp.GID:
		violations = append(violations, fmt.Sprintf("user %q has uid/gid %d/%d, want %d/%d", exp.User, uid, gid, exp.UID, exp.GID))
	}
	if !grantsPasswordlessSudo(fs.sudoers, exp.User) {
		violations = append(violations, fmt.Sprintf("user %q has no passwordless sudo", exp.User))
	}
	for _, f := range exp.Removed {
		if _, ok := fs.present[cleanPath(f)]; ok {
			violations = append(violations, fmt.Sprintf("%s still present", f))
		}
	}

	if len(violations) > 0 {
		return &VerificationError{Violations: violations}
	}

	return nil
}

type filesystem struct {
	passwd  string
	sudoers string
	present map[string]struct{}
}

// scanFilesystem walks the flattened image and keeps only what verification
// looks at.
func scanFilesystem(img v1.Image, exp Expectation) (filesystem, error) {
	rc := mutate.Extract(img)
	defer rc.Close()

	watched := make(map[string]struct{}, len(exp.Removed))
	for _, f := range exp.Removed {
		watched[cleanPath(f)] = struct{}{}
	}
	sudoersFile := cleanPath(path.Join("/etc/sudoers.d", exp.User))

	fs := filesystem{present: make(map[string]struct{})}
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fs, errors.Wrap(err, "read image filesystem")
		}

		name := cleanPath(hdr.Name)
		if _, ok := watched[name]; ok {
			fs.present[name] = struct{}{}
		}
		switch name {
		case "etc/passwd":
			b, err := io.ReadAll(tr)
			if err != nil {
				return fs, errors.Wrap(err, "read /etc/passwd")
			}
			fs.passwd = string(b)
		case sudoersFile, "etc/sudoers":
			b, err := io.ReadAll(tr)
			if err != nil {
				return fs, errors.Wrapf(err, "read %s", name)
			}
			fs.sudoers += string(b) + "\n"
		}
	}

	return fs, nil
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func envMap(env []string) map[string]string {
	res := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		res[k] = v
	}

	return res
}

func passwdEntry(passwd, user string) (uid, gid int, found bool) {
	sc := bufio.NewScanner(strings.NewReader(passwd))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) < 4 || fields[0] != user {
			continue
		}
		uid, errU := strconv.Atoi(fields[2])
		gid, errG := strconv.Atoi(fields[3])
		if errU != nil || errG != nil {
			return 0, 0, false
		}

		return uid, gid, true
	}

	return 0, 0, false
}

// grantsPasswordlessSudo reports whether a sudoers rule lets user run any
// command without a password.
func grantsPasswordlessSudo(sudoers, user string) bool {
	sc := bufio.NewScanner(strings.NewReader(sudoers))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != user {
			continue
		}
		_, commands, ok := strings.Cut(line, "NOPASSWD:")
		if ok && strings.TrimSpace(commands) == "ALL" {
			return true
		}
	}

	return false
}
