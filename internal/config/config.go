// Package config loads the client and server YAML configuration files
// (config_user.yml, config_server.yml) described in spec.md §6.
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// User is the client-side config_user.yml document.
type User struct {
	User struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	} `yaml:"user"`
	Remotes map[string]string `yaml:"remotes,omitempty"`
}

// Server is the server-side config_server.yml document.
type Server struct {
	Server struct {
		// FetchMaxNbytes bounds the uncompressed byte budget accumulated
		// per streamed FetchData reply batch (§9 open question 3: this
		// implementation bounds the uncompressed size).
		FetchMaxNbytes  int64  `yaml:"fetch_max_nbytes"`
		PushChunkBytes  int64  `yaml:"push_chunk_byte_cap"`
		CompressionOn   bool   `yaml:"compression_enabled"`
		Optimization    string `yaml:"optimization"`
		ListenAddr      string `yaml:"listen_addr"`
	} `yaml:"server"`
}

// DefaultServer returns the baseline server tuning applied when no config
// file is present.
func DefaultServer() Server {
	var s Server
	s.Server.FetchMaxNbytes = 1 << 28 // 256 MiB
	s.Server.PushChunkBytes = 1 << 22 // 4 MiB
	s.Server.CompressionOn = true
	s.Server.Optimization = "balanced"
	s.Server.ListenAddr = ":50051"
	return s
}

// LoadUser reads and parses config_user.yml from path. A missing file is
// not an error; the zero-value User is returned.
func LoadUser(path string) (User, error) {
	var u User
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return u, nil
		}
		return u, err
	}
	if err := yaml.Unmarshal(b, &u); err != nil {
		return u, err
	}
	return u, nil
}

// LoadServer reads and parses config_server.yml from path, falling back to
// DefaultServer for any field left unset by a missing file.
func LoadServer(path string) (Server, error) {
	s := DefaultServer()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes a User config to path as YAML.
func (u User) Save(path string) error {
	b, err := yaml.Marshal(u)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Save writes a Server config to path as YAML.
func (s Server) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
