// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterNodeSendsPostAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/nodes" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"id":"n1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.RegisterNode(context.Background(), []byte(`{"mac":"aa:bb:cc:dd:ee:ff"}`)); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}
}

func TestDoReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"message":"mac already registered"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.RegisterNode(context.Background(), []byte(`{"mac":"aa:bb:cc:dd:ee:ff"}`))
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
}

func TestHealthOKReflectsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if !c.HealthOK(context.Background()) {
		t.Fatal("expected HealthOK to return true for 200")
	}
}

func TestListNodesDecodesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[{"id":"n1","mac":"aa:bb:cc:dd:ee:ff","state":"active"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	nodes, err := c.ListNodes(context.Background())
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 1 || nodes[0].MAC != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
}
