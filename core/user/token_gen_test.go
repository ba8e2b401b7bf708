package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := tokenGenerator{secretKey: []byte("secret"), timeout: 3 * 24 * time.Hour}

	now := time.Now()
	usr := User{
		ID:        "8e0f5f3c-5d0e-4c43-9d5c-0d9c1d4c6f11",
		Name:      "T",
		Username:  "tester",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken := tg.makeToken(usr)

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := tg.makeToken(usr)
	nowFunc = time.Now // reset

	loggedInAgain := usr
	loggedInAgain.LastLogin = now.Add(time.Minute)

	otherKey := tokenGenerator{secretKey: []byte("other"), timeout: tg.timeout}

	tests := []struct {
		name    string
		tg      tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", tg: tg, usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", tg: tg, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", tg: tg, usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", tg: tg, usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", tg: tg, usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", tg: tg, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "user logged in since", tg: tg, usr: loggedInAgain, token: validToken, wantErr: errInvalidToken},
		{name: "other secret key", tg: otherKey, usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", tg: tg, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tg.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "8e0f5f3c-5d0e-4c43-9d5c-0d9c1d4c6f11"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("decodeUID() error = %v", err)
	}
	if id != usr.ID {
		t.Errorf("decodeUID() = %s, want %s", id, usr.ID)
	}
	if _, err = decodeUID("%%%"); err == nil {
		t.Error("decodeUID() expected an error for an invalid uid")
	}
}
