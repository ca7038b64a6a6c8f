package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EverySite in a user's sites grants access to all sites.
const EverySite = "*"

// User is a backend account. A user without sites may not view any site.
type User struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Sites    []string `yaml:"sites,omitempty"`

	// SessionKey changes whenever the password does, which invalidates
	// existing sessions.
	SessionKey []byte `yaml:"-"`
}

func (u *User) AllSites() bool {
	for _, s := range u.Sites {
		if s == EverySite {
			return true
		}
	}
	return false
}

type UserManager struct {
	users map[string]*User
}

type userFile struct {
	Users []*User `yaml:"users"`
}

func NewUserManager() *UserManager {
	return &UserManager{users: map[string]*User{}}
}

// LoadUsers reads a users document:
//
//	users:
//	  - name: admin
//	    password: $2a$10$...
//	    sites: ['*']
//	  - name: editor
//	    password: $2a$10$...
//	    sites: [site-a]
func LoadUsers(r io.Reader) (*UserManager, error) {
	um := NewUserManager()

	var f userFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to parse users: %w", err)
	}

	for i := range f.Users {
		u := f.Users[i]
		if u.Name == "" {
			return nil, fmt.Errorf("user %d has no name", i)
		}
		if _, err := bcrypt.Cost([]byte(u.Password)); err != nil {
			return nil, fmt.Errorf("user %s: password is not a bcrypt hash", u.Name)
		}
		u.SessionKey = sessionKey(u.Password)
		um.users[strings.ToLower(u.Name)] = u
	}

	return um, nil
}

// LoadUsersFile reads the users document at path. A missing file gives an
// empty manager.
func LoadUsersFile(path string) (*UserManager, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewUserManager(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadUsers(f)
}

func (a *UserManager) Empty() bool {
	return len(a.users) == 0
}

func (a *UserManager) Authenticate(username, password string) (*User, error) {
	user, ok := a.users[strings.ToLower(username)]
	if !ok {
		return nil, fmt.Errorf("invalid username/password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid username/password")
	}

	return user, nil
}

func (a *UserManager) User(username string) *User {
	return a.users[strings.ToLower(username)]
}

// Users returns all users ordered by name.
func (a *UserManager) Users() []*User {
	var res []*User
	for i := range a.users {
		res = append(res, a.users[i])
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name < res[j].Name
	})
	return res
}

func (a *UserManager) AddUser(user, password string, sites []string) error {
	if user == "" {
		return errors.New("invalid username")
	}

	if _, ok := a.users[strings.ToLower(user)]; ok {
		return fmt.Errorf("user already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	a.users[strings.ToLower(user)] = &User{
		Name:       user,
		Password:   string(hash),
		Sites:      sites,
		SessionKey: sessionKey(string(hash)),
	}
	return nil
}

// Save writes the users in the format read by LoadUsers.
func (a *UserManager) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(&userFile{Users: a.Users()}); err != nil {
		return err
	}
	return enc.Close()
}

// SaveFile writes the users to path, readable only by the owner.
func (a *UserManager) SaveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := a.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func sessionKey(hash string) []byte {
	sum := sha256.Sum256([]byte(hash))
	return sum[:]
}
