package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestLoadUsers(t *testing.T) {
	doc := `
users:
  - name: Admin
    password: ` + hash(t, "secret") + `
    sites: ['*']
  - name: nobody
    password: ` + hash(t, "none") + `
    sites: []
  - name: editor
    password: ` + hash(t, "hunter2") + `
    sites: [site-a, site-b]
`
	um, err := LoadUsers(strings.NewReader(doc))
	require.NoError(t, err)
	assert.False(t, um.Empty())

	admin := um.User("admin")
	require.NotNil(t, admin)
	assert.Equal(t, "Admin", admin.Name)
	assert.True(t, admin.AllSites())
	assert.Len(t, admin.SessionKey, 32)

	editor := um.User("EDITOR")
	require.NotNil(t, editor)
	assert.False(t, editor.AllSites())
	assert.Equal(t, []string{"site-a", "site-b"}, editor.Sites)

	nobody := um.User("nobody")
	require.NotNil(t, nobody)
	assert.False(t, nobody.AllSites())

	assert.Nil(t, um.User("missing"))
	assert.Len(t, um.Users(), 3)
}

func TestLoadUsers_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"plain text password", "users:\n  - name: a\n    password: secret\n"},
		{"missing name", "users:\n  - password: " + hash(t, "x") + "\n"},
		{"not yaml", "users: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadUsers(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadUsers_Empty(t *testing.T) {
	um, err := LoadUsers(strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, um.Empty())

	um, err = LoadUsersFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, um.Empty())
}

func TestUserManager_Authenticate(t *testing.T) {
	um := NewUserManager()
	require.NoError(t, um.AddUser("editor", "hunter2", []string{"site-a"}))

	user, err := um.Authenticate("Editor", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "editor", user.Name)

	_, err = um.Authenticate("editor", "wrong")
	assert.Error(t, err)

	_, err = um.Authenticate("nobody", "hunter2")
	assert.Error(t, err)
}

func TestUser_AllSites(t *testing.T) {
	tests := []struct {
		name  string
		sites []string
		want  bool
	}{
		{"no sites", nil, false},
		{"empty list", []string{}, false},
		{"some sites", []string{"site-a"}, false},
		{"every site", []string{EverySite}, true},
		{"every site among others", []string{"site-a", EverySite}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Name: "u", Sites: tt.sites}
			assert.Equal(t, tt.want, u.AllSites())
		})
	}
}

func TestUserManager_AddUser(t *testing.T) {
	um := NewUserManager()
	require.NoError(t, um.AddUser("editor", "one", nil))
	assert.Error(t, um.AddUser("EDITOR", "two", nil))
	assert.Error(t, um.AddUser("", "two", nil))
}

func TestUserManager_SaveRoundTrip(t *testing.T) {
	um := NewUserManager()
	require.NoError(t, um.AddUser("b", "pw-b", []string{"site-b"}))
	require.NoError(t, um.AddUser("a", "pw-a", nil))

	var buf bytes.Buffer
	require.NoError(t, um.Save(&buf))
	assert.Less(t, strings.Index(buf.String(), "name: a"), strings.Index(buf.String(), "name: b"))

	loaded, err := LoadUsers(&buf)
	require.NoError(t, err)
	_, err = loaded.Authenticate("b", "pw-b")
	assert.NoError(t, err)
	assert.Equal(t, []string{"site-b"}, loaded.User("b").Sites)
	assert.Equal(t, um.User("a").SessionKey, loaded.User("a").SessionKey)

	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, um.SaveFile(path))
	fromFile, err := LoadUsersFile(path)
	require.NoError(t, err)
	assert.Len(t, fromFile.Users(), 2)
}
