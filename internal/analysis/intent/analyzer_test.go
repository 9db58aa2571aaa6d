package intent

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassifySearch(t *testing.T) {
	decision := Classify("Can you find what I wrote about photosynthesis in my notes?")
	if decision.Type != Search {
		t.Fatalf("expected SEARCH, got %s", decision.Type)
	}
	if !reflect.DeepEqual(decision.Keywords, []string{"photosynthesis"}) {
		t.Fatalf("unexpected keywords: %v", decision.Keywords)
	}
}

func TestClassifyAddToNote(t *testing.T) {
	decision := Classify("Please add a note about the Krebs cycle")
	if decision.Type != AddToNote {
		t.Fatalf("expected ADD_TO_NOTE, got %s", decision.Type)
	}
	if decision.Score == 0 {
		t.Fatal("expected a positive score")
	}
}

func TestClassifyGeneral(t *testing.T) {
	for _, message := range []string{"", "   ", "What is the capital of France?"} {
		if decision := Classify(message); decision.Type != General {
			t.Fatalf("%q: expected GENERAL, got %s", message, decision.Type)
		}
	}
}

func TestKeywordsDropsStopwordsAndDuplicates(t *testing.T) {
	got := Keywords("Where is the mitochondria? The MITOCHONDRIA and ATP-synthase, ok")
	want := []string{"mitochondria", "atp-synthase"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseModelReply(t *testing.T) {
	reply := "```json\n{\"query_type\": \"search\", \"keywords\": [\"Cells\", \" membrane \", \"cells\"]}\n```"
	decision, err := Parse(reply, "find cells")
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if decision.Type != Search {
		t.Fatalf("expected SEARCH, got %s", decision.Type)
	}
	if !reflect.DeepEqual(decision.Keywords, []string{"cells", "membrane"}) {
		t.Fatalf("unexpected keywords: %v", decision.Keywords)
	}
}

func TestParseSearchWithoutKeywordsUsesMessage(t *testing.T) {
	decision, err := Parse(`{"query_type":"SEARCH"}`, "osmosis diffusion")
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if !reflect.DeepEqual(decision.Keywords, []string{"osmosis", "diffusion"}) {
		t.Fatalf("unexpected keywords: %v", decision.Keywords)
	}
}

func TestParseUnknownTypeIsGeneral(t *testing.T) {
	decision, err := Parse(`{"query_type":"CHITCHAT"}`, "hi")
	if err != nil || decision.Type != General {
		t.Fatalf("expected GENERAL, got %v, %v", decision, err)
	}
}

func TestParseRejectsInvalidReply(t *testing.T) {
	if _, err := Parse("I think this is a search", "x"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
	if _, err := Parse(`{"query_type": }`, "x"); err == nil {
		t.Fatal("expected decode error")
	}
}
