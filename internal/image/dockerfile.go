// Package image renders the Dockerfile of the experiment environment, builds
// it with docker and checks the properties a built image must hold.
package image

import (
	"io"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

var ErrInvalidSpec = errors.New("invalid image spec")

// Spec holds the values the Dockerfile is rendered from. Username, UID and
// GID are also exposed as build arguments so they can be overridden at build
// time.
type Spec struct {
	BaseImage     string   `yaml:"base_image"`
	Packages      []string `yaml:"packages"`
	Username      string   `yaml:"username"`
	UID           int      `yaml:"uid"`
	GID           int      `yaml:"gid"`
	EnvName       string   `yaml:"env_name"`
	PythonVersion string   `yaml:"python_version"`
	Requirements  string   `yaml:"requirements"`
	Setup         string   `yaml:"setup"`
	InstallDir    string   `yaml:"install_dir"`
	EditorDir     string   `yaml:"editor_dir"`
	Shell         string   `yaml:"shell"`
}

func DefaultSpec() Spec {
	return Spec{
		BaseImage:     "pytorch/pytorch:1.4-cuda10.1-cudnn7-runtime",
		Packages:      []string{"openssh-client", "sudo"},
		Username:      "pytorch",
		UID:           1000,
		GID:           1000,
		EnvName:       "jitsdp",
		PythonVersion: "3.7",
		Requirements:  "requirements.txt",
		Setup:         "setup.py",
		InstallDir:    "/tmp/jitsdp",
		EditorDir:     ".vscode-server",
		Shell:         "/bin/bash",
	}
}

func (s Spec) Validate() error {
	switch {
	case strings.TrimSpace(s.BaseImage) == "":
		return errors.Wrap(ErrInvalidSpec, "base image must be set")
	case strings.TrimSpace(s.Username) == "":
		return errors.Wrap(ErrInvalidSpec, "username must be set")
	case s.Username == "root":
		return errors.Wrap(ErrInvalidSpec, "user must not be root")
	case s.UID <= 0 || s.GID <= 0:
		return errors.Wrapf(ErrInvalidSpec, "uid %d and gid %d must be positive", s.UID, s.GID)
	case s.EnvName == "" || s.PythonVersion == "":
		return errors.Wrap(ErrInvalidSpec, "environment name and python version must be set")
	case s.Requirements == "" || s.Setup == "":
		return errors.Wrap(ErrInvalidSpec, "requirements and setup files must be set")
	case !path.IsAbs(s.InstallDir):
		return errors.Wrapf(ErrInvalidSpec, "install dir %q must be absolute", s.InstallDir)
	case !path.IsAbs(s.Shell):
		return errors.Wrapf(ErrInvalidSpec, "shell %q must be absolute", s.Shell)
	}

	return nil
}

// Home is the home directory of the image user.
func (s Spec) Home() string {
	return path.Join("/home", s.Username)
}

// InstalledFiles are the manifests copied in for the install step. They must
// not survive in the final image.
func (s Spec) InstalledFiles() []string {
	return []string{path.Join(s.InstallDir, s.Requirements), path.Join(s.InstallDir, s.Setup)}
}

// BuildArgs returns the docker build flags overriding the user arguments.
func BuildArgs(s Spec) []string {
	return []string{
		"--build-arg", "USERNAME=" + s.Username,
		"--build-arg", "USER_UID=" + strconv.Itoa(s.UID),
		"--build-arg", "USER_GID=" + strconv.Itoa(s.GID),
	}
}

const dockerfile = `FROM {{ .BaseImage }}

ARG USERNAME={{ .Username }}
ARG USER_UID={{ .UID }}
ARG USER_GID={{ .GID }}

RUN apt-get update \
    && apt-get install -y --no-install-recommends{{ range .Packages }} {{ . }}{{ end }} \
    && rm -rf /var/lib/apt/lists/*

RUN groupadd --gid $USER_GID $USERNAME \
    && useradd --uid $USER_UID --gid $USER_GID --create-home --shell {{ .Shell }} $USERNAME \
    && echo "$USERNAME ALL=(root) NOPASSWD:ALL" > /etc/sudoers.d/$USERNAME \
    && chmod 0440 /etc/sudoers.d/$USERNAME \
    && mkdir -p /home/$USERNAME/{{ .EditorDir }} \
    && chown -R $USER_UID:$USER_GID /home/$USERNAME

ENV HOME=/home/$USERNAME
ENV SHELL={{ .Shell }}

COPY {{ .Requirements }} {{ .Setup }} {{ .InstallDir }}/
RUN conda create --yes --name {{ .EnvName }} python={{ .PythonVersion }} \
    && conda run --name {{ .EnvName }} pip install --no-cache-dir --requirement {{ .InstallDir }}/{{ .Requirements }} \
    && rm -rf {{ .InstallDir }} \
    && conda clean --all --yes

USER $USERNAME
WORKDIR /home/$USERNAME

CMD ["{{ .Shell }}"]
`

var dockerfileTmpl = template.Must(template.New("Dockerfile").Parse(dockerfile))

// Render writes the Dockerfile for s.
func Render(w io.Writer, s Spec) error {
	if err := s.Validate(); err != nil {
		return err
	}

	return errors.Wrap(dockerfileTmpl.Execute(w, s), "render Dockerfile")
}
