package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func testPlan(mode modeType) plan {
	return plan{
		mode:        mode,
		baseURL:     "http://sk",
		players:     4,
		courses:     2,
		holes:       18,
		group:       "flight a",
		pollEvery:   10,
		repeatEvery: 7,
		author:      "lg",
	}
}

func TestRequestFor_Write(t *testing.T) {
	r := testPlan(modeWrite).requestFor(0, 5)
	if r.method != http.MethodPut {
		t.Fatalf("method: got %s", r.method)
	}
	if r.url != "http://sk/scores/player-2/course-2/1" {
		t.Fatalf("url: got %s", r.url)
	}
	if r.body != `{"value":6}` {
		t.Fatalf("body: got %s", r.body)
	}
}

func TestRequestFor_TriggerBodyDecodes(t *testing.T) {
	p := testPlan(modeTrigger)
	var sawNoop bool
	for i := 0; i < 30; i++ {
		r := p.requestFor(0, i)
		if r.method != http.MethodPost || !strings.HasSuffix(r.url, "/triggers/score-written") {
			t.Fatalf("unexpected request %+v", r)
		}
		var body struct {
			Before int `json:"before"`
			After  int `json:"after"`
			Params struct {
				PlayerID string `json:"playerId"`
				Hole     string `json:"hole"`
			} `json:"params"`
		}
		if err := json.Unmarshal([]byte(r.body), &body); err != nil {
			t.Fatalf("request %d body %q: %v", i, r.body, err)
		}
		if body.Params.PlayerID == "" || body.Params.Hole == "" {
			t.Fatalf("missing params in %q", r.body)
		}
		if body.Before == body.After {
			sawNoop = true
		}
	}
	if !sawNoop {
		t.Fatalf("expected at least one no-op trigger")
	}
}

func TestRequestFor_MixedAndPoll(t *testing.T) {
	mixed := testPlan(modeMixed)
	polls := 0
	for i := 0; i < 100; i++ {
		if mixed.requestFor(0, i).method == http.MethodGet {
			polls++
		}
	}
	if polls != 10 {
		t.Fatalf("expected 10 polls in 100 mixed requests, got %d", polls)
	}
	r := testPlan(modePoll).requestFor(3, 1)
	if r.url != "http://sk/scores/changes?group=flight+a" {
		t.Fatalf("poll url: got %s", r.url)
	}
}

func TestPlanValidate(t *testing.T) {
	if err := testPlan(modeMixed).validate(); err != nil {
		t.Fatalf("valid plan: %v", err)
	}
	if err := testPlan("burst").validate(); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	p := testPlan(modeWrite)
	p.holes = 0
	if err := p.validate(); err == nil {
		t.Fatalf("expected error for zero holes")
	}
}
