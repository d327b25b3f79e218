package scoring

import (
	"strings"
	"testing"

	"github.com/spigell/tg-responder/internal/model"
)

func rule(id int64, text string, weight int) model.Rule {
	return model.Rule{ID: id, Text: text, Weight: weight, Active: true}
}

func TestNormalize(t *testing.T) {
	engine := New(0, DefaultExceptions)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases and strips punctuation", input: "Remote Go Developer, position!", want: "remote go developer position"},
		{name: "collapses whitespace", input: "  go \n\n developer\t", want: "go developer"},
		{name: "keeps cyrillic", input: "Ищем Go-разработчика!!!", want: "ищем go разработчика"},
		{name: "keeps underscores", input: "@real_recruiter", want: "real_recruiter"},
		{name: "protects exception tokens", input: "C++ and C# on .NET", want: "c++ and c# on .net"},
		{name: "prefers longer tokens", input: "ASP.NET Core", want: "asp.net core"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Normalize(tt.input); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestScore(t *testing.T) {
	engine := New(5, DefaultExceptions)
	rules := []model.Rule{
		rule(1, "go developer", 5),
		rule(2, "remote", 3),
	}

	score := engine.Score("Remote Go Developer position, contact @real_recruiter", rules)
	if score != 8 {
		t.Fatalf("expected score 8, got %d", score)
	}
	if !engine.Qualifies(score) {
		t.Fatalf("expected score %d to qualify with threshold %d", score, engine.Threshold())
	}
}

func TestScoreBelowThreshold(t *testing.T) {
	engine := New(10, nil)
	rules := []model.Rule{rule(1, "remote", 3), rule(2, "go developer", 5)}

	score := engine.Score("Remote only, python", rules)
	if score != 3 {
		t.Fatalf("expected score 3, got %d", score)
	}
	if engine.Qualifies(score) {
		t.Fatalf("score %d should not qualify", score)
	}
}

func TestScoreCountsRuleOnce(t *testing.T) {
	engine := New(0, nil)
	rules := []model.Rule{
		rule(1, "golang, go developer, go разработчик", 4),
		rule(1, "golang", 4),
	}

	score := engine.Score("Golang! golang golang. Go developer wanted, go разработчик", rules)
	if score != 4 {
		t.Fatalf("expected the rule to count once, got %d", score)
	}
}

func TestScoreSkipsInactiveRules(t *testing.T) {
	engine := New(0, nil)
	rules := []model.Rule{
		rule(1, "golang", 4),
		{ID: 2, Text: "remote", Weight: 10, Active: false},
	}

	if score := engine.Score("remote golang", rules); score != 4 {
		t.Fatalf("expected 4, got %d", score)
	}
}

func TestScoreInvariantToCaseAndWhitespace(t *testing.T) {
	engine := New(0, DefaultExceptions)
	rules := []model.Rule{
		rule(1, "Go Developer", 5),
		rule(2, "remote", 3),
		rule(3, "c++", 2),
	}

	base := engine.Score("remote go developer c++", rules)
	variants := []string{
		"REMOTE GO DEVELOPER C++",
		"  remote\n\ngo   developer\tc++  ",
		"Remote Go Developer C++",
	}

	for _, v := range variants {
		if got := engine.Score(v, rules); got != base {
			t.Fatalf("expected %d for %q, got %d", base, v, got)
		}
		if again := engine.Score(v, rules); again != base {
			t.Fatalf("score is not deterministic for %q", v)
		}
	}
}

func TestScoreExceptionTokensDoNotLeak(t *testing.T) {
	engine := New(0, DefaultExceptions)
	rules := []model.Rule{rule(1, "c developer", 5)}

	if score := engine.Score("C++ developer needed", rules); score != 0 {
		t.Fatalf("c++ must not match a plain c rule, got %d", score)
	}

	unprotected := New(0, nil)
	if score := unprotected.Score("C++ developer needed", rules); score != 5 {
		t.Fatalf("without protection punctuation is stripped, expected 5, got %d", score)
	}
}

func TestExceptionTokensStayDistinct(t *testing.T) {
	engine := New(0, DefaultExceptions)

	for _, token := range DefaultExceptions {
		t.Run(token, func(t *testing.T) {
			text := "Senior " + strings.ToUpper(token) + " developer"
			want := token + " developer"
			if got := engine.Normalize(text); got != "senior "+want {
				t.Fatalf("expected %q, got %q", "senior "+want, got)
			}

			for _, other := range DefaultExceptions {
				if strings.Contains(token, other) {
					continue
				}
				if score := engine.Score(text, []model.Rule{rule(1, other, 5)}); score != 0 {
					t.Fatalf("%q must not match a %q rule, got %d", token, other, score)
				}
			}
		})
	}
}

func TestScoreNodeDoesNotMatchAspNet(t *testing.T) {
	engine := New(0, DefaultExceptions)
	if score := engine.Score("Senior Node.js developer", []model.Rule{rule(1, "asp.net", 5)}); score != 0 {
		t.Fatalf("expected 0, got %d", score)
	}
	if score := engine.Score("ASP.NET Core developer", []model.Rule{rule(1, "asp.net", 5)}); score != 5 {
		t.Fatalf("expected 5, got %d", score)
	}
}

func TestScoreEmptyText(t *testing.T) {
	engine := New(0, nil)
	if score := engine.Score("!!!", []model.Rule{rule(1, "go", 1)}); score != 0 {
		t.Fatalf("expected 0, got %d", score)
	}
}
