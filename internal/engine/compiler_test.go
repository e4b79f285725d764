package engine

import (
	"context"
	"strings"
	"testing"
)

func rankMutatePlan() *Plan {
	return planOf(
		Step{ToolName: "browser", Params: Map(map[string]Value{
			"action": String("navigate"),
			"url":    String("https://news.example.com/feed"),
		})},
		Step{ToolName: "rank", Params: Map(map[string]Value{
			"query": String("celebrity gossip"),
			"items": String("{{notepad:headlines}}"),
		}), StoreAs: "ranked"},
		Step{ToolName: "mutate", Params: Map(map[string]Value{
			"action":   String("hide"),
			"selector": String(".headline"),
		})},
	)
}

func TestCompile_NameFromTaskWords(t *testing.T) {
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), "hide all celebrity gossip from my news feed please ok", reportPlan())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	// Eight words, title-cased, after the prefix.
	if fn.Name != "RunHideAllCelebrityGossipFromMyNewsFeed" {
		t.Errorf("Name = %q", fn.Name)
	}
}

func TestCompile_NameCollisionGetsNumericSuffix(t *testing.T) {
	lib := newMemLibrary()
	c := &Compiler{Library: lib}

	first, err := c.Compile(context.Background(), "clean the feed", reportPlan())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := c.Compile(context.Background(), "clean the feed", reportPlan())
	if err != nil {
		t.Fatalf("Second compile failed: %v", err)
	}

	if second.Name != first.Name+"2" {
		t.Errorf("Collision name = %q, expected %q", second.Name, first.Name+"2")
	}
}

func TestCompile_ExclusionTaskParameterizesExcludedTopics(t *testing.T) {
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), `hide "celebrity gossip" from the feed`, rankMutatePlan())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var input *FunctionInput
	for i := range fn.Inputs {
		if fn.Inputs[i].Name == "excludedTopics" {
			input = &fn.Inputs[i]
		}
	}
	if input == nil {
		t.Fatalf("excludedTopics input missing, inputs: %+v", fn.Inputs)
	}
	if input.DefaultValue != "celebrity gossip" {
		t.Errorf("Default = %v, expected the quoted phrase", input.DefaultValue)
	}

	// The rank step's literal query becomes the input token.
	q := fn.Plan.Steps[1].Params.MapVal()["query"].StringVal()
	if q != "{{input:excludedTopics}}" {
		t.Errorf("Rank query = %q", q)
	}
}

func TestCompile_NonExclusionTaskUsesSemanticQuery(t *testing.T) {
	plan := planOf(
		Step{ToolName: "rank", Params: Map(map[string]Value{
			"query": String("budget laptops"),
			"items": String("{{notepad:products}}"),
		}), StoreAs: "ranked"},
	)
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), "sort products by relevance", plan)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if len(fn.Inputs) == 0 || fn.Inputs[0].Name != "semanticQuery" {
		t.Fatalf("Expected semanticQuery input, got %+v", fn.Inputs)
	}
	if fn.Inputs[0].DefaultValue != "budget laptops" {
		t.Errorf("Default should keep the literal query, got %v", fn.Inputs[0].DefaultValue)
	}
}

func TestCompile_IterativeWhenRankAndMutate(t *testing.T) {
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), "remove gossip", rankMutatePlan())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if !fn.Iterative {
		t.Error("Rank+mutate plan must compile iterative")
	}
	found := false
	for _, in := range fn.Inputs {
		if in.Name == "maxPasses" {
			found = true
			if in.DefaultValue != 5 {
				t.Errorf("maxPasses default = %v, expected 5", in.DefaultValue)
			}
		}
	}
	if !found {
		t.Error("Iterative function must declare maxPasses")
	}
}

func TestCompile_RegionTaskAddsRegionInput(t *testing.T) {
	plan := planOf(
		Step{ToolName: "scrape", Params: Map(map[string]Value{
			"url": String("https://shop.example.com/item"),
		}), StoreAs: "page"},
	)
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), "check the price in my country", plan)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	var region *FunctionInput
	for i := range fn.Inputs {
		if fn.Inputs[i].Name == "regionPreference" {
			region = &fn.Inputs[i]
		}
	}
	if region == nil {
		t.Fatal("regionPreference input missing")
	}
	if region.DefaultValue != "us" {
		t.Errorf("Region default = %v", region.DefaultValue)
	}
	if got := fn.Plan.Steps[0].Params.MapVal()["region"].StringVal(); got != "{{input:regionPreference}}" {
		t.Errorf("Scrape step region = %q", got)
	}
}

func TestCompile_TopicInstructionRewrite(t *testing.T) {
	plan := planOf(
		Step{ToolName: "rank", Params: Map(map[string]Value{
			"query": String("celebrity gossip"),
			"items": String("{{notepad:posts}}"),
		}), StoreAs: "ranked"},
		Step{ToolName: "infer", Params: Map(map[string]Value{
			"action":      String("check"),
			"instruction": String(`Is this post about the topic "celebrity gossip"?`),
			"data":        String("{{notepad:ranked}}"),
		})},
	)
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), `exclude posts about "celebrity gossip"`, plan)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	instr := fn.Plan.Steps[1].Params.MapVal()["instruction"].StringVal()
	if strings.Contains(instr, "celebrity gossip") {
		t.Errorf("Instruction still carries the literal topic: %q", instr)
	}
	if !strings.Contains(instr, "{{input:excludedTopics}}") {
		t.Errorf("Instruction not rewritten to the input token: %q", instr)
	}
}

func TestCompile_CollectsApplicableHosts(t *testing.T) {
	c := &Compiler{Library: newMemLibrary()}
	fn, err := c.Compile(context.Background(), "tidy the feed", rankMutatePlan())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(fn.URLApplicability) != 1 || fn.URLApplicability[0] != "news.example.com" {
		t.Errorf("URLApplicability = %v", fn.URLApplicability)
	}
}

func TestCompile_DoesNotMutateExecutedPlan(t *testing.T) {
	plan := rankMutatePlan()
	c := &Compiler{Library: newMemLibrary()}
	if _, err := c.Compile(context.Background(), `hide "celebrity gossip"`, plan); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if got := plan.Steps[1].Params.MapVal()["query"].StringVal(); got != "celebrity gossip" {
		t.Errorf("Compile rewrote the executed plan: query = %q", got)
	}
}
