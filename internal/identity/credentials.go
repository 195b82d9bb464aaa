// Package identity authenticates users against the credential table and
// issues session tokens.
package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

// CredentialsFile is the name of the credential table in the data directory.
const CredentialsFile = "users.xlsx"

var (
	// ErrInvalidCredentials is returned when the username or password does
	// not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoCredentials is returned when the credential table does not exist.
	ErrNoCredentials = errors.New("credential table not found")
)

// Credentials looks up users in a spreadsheet. The first row is a header;
// column A holds the username and column B the password.
//
// The table is read on every call so edits take effect without a restart.
type Credentials struct {
	path string
}

// NewCredentials returns a Credentials backed by the spreadsheet at path.
func NewCredentials(path string) *Credentials {
	return &Credentials{path: path}
}

// Enabled reports whether the credential table exists.
func (c *Credentials) Enabled() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Authenticate checks username and password against the table.
//
// Passwords are compared verbatim unless the stored entry is a bcrypt hash.
func (c *Credentials) Authenticate(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	f, err := excelize.OpenFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNoCredentials
		}
		return fmt.Errorf("failed to open %s: %w", CredentialsFile, err)
	}
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", CredentialsFile, err)
	}
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		if strings.TrimSpace(row[0]) != username {
			continue
		}
		if checkPassword(row[1], password) {
			return nil
		}
		return ErrInvalidCredentials
	}
	return ErrInvalidCredentials
}

func checkPassword(stored, password string) bool {
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
