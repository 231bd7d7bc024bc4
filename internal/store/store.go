package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"nuha.dev/fleetmap/internal/vehicle"
)

// Collection is the remote path every vehicle record lives under.
const Collection = "LastReportedEvent"

const (
	CodeUserNotFound  string = "auth/user-not-found"
	CodeWrongPassword string = "auth/wrong-password"
	CodeUserDisabled  string = "auth/user-disabled"
	CodeInternal      string = "auth/internal-error"
)

// Change is a child-changed notification: the full new value of one
// existing record.
type Change struct {
	Key   string         `json:"key"`
	Value vehicle.Fields `json:"value"`
}

type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Store interface {
	SignIn(ctx context.Context, email, password string) error
	ReadAll(ctx context.Context) (map[string]vehicle.Fields, error)
	// Set replaces the whole record at id with exactly these fields.
	Set(ctx context.Context, id string, f vehicle.Fields) error
	// Watch delivers child-changed notifications until ctx ends. Inserts of
	// new ids and writes that leave the value unchanged are not delivered.
	Watch(ctx context.Context, fn func(Change)) error
}

func UserNotFound(email string) *AuthError {
	return &AuthError{Code: CodeUserNotFound, Message: fmt.Sprintf("There is no user record corresponding to %s.", email)}
}

func WrongPassword() *AuthError {
	return &AuthError{Code: CodeWrongPassword, Message: "The password is invalid or the user does not have a password."}
}

func UserDisabled() *AuthError {
	return &AuthError{Code: CodeUserDisabled, Message: "The user account has been disabled by an administrator."}
}

// ReadSeedFile reads a JSON object of id -> record, the shape of an export
// of the LastReportedEvent collection.
func ReadSeedFile(path string) (map[string]vehicle.Fields, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	all := map[string]vehicle.Fields{}
	err = json.Unmarshal(b, &all)
	if err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return all, nil
}
