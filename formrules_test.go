package formrules_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-formrules"
	"github.com/goliatone/go-formrules/pkg/openapi"
)

const profileDoc = `
id: profile
fields:
  - name: nickname
    rules: required|alpha_dash|max:12
`

const profileAPI = `
openapi: 3.0.3
info: {title: Profiles, version: "1"}
paths:
  /profiles:
    post:
      operationId: createProfile
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [nickname]
              properties:
                nickname:
                  type: string
                  maxLength: 12
`

func TestLoad(t *testing.T) {
	t.Parallel()

	f, err := formrules.Load([]byte(profileDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := f.SetValue("nickname", "way too long nickname"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	valid, err := f.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Fatal("expected nickname to fail")
	}
}

func TestFromOpenAPI(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(profileAPI))
	}))
	defer srv.Close()

	src, err := openapi.SourceFromURL(srv.URL + "/openapi.yaml")
	if err != nil {
		t.Fatalf("SourceFromURL: %v", err)
	}
	f, err := formrules.FromOpenAPI(context.Background(), src, "createProfile", srv.Client())
	if err != nil {
		t.Fatalf("FromOpenAPI: %v", err)
	}

	valid, err := f.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Fatal("expected required nickname to fail")
	}
	if got := f.Errors()["nickname"]; len(got) != 1 {
		t.Fatalf("expected one nickname message, got %v", got)
	}
}
