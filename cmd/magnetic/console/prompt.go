package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// YesOrNo asks question and returns Yes or No; No is the default.
func YesOrNo(question string) (string, error) {
	return Prompt(question, No, Yes)
}

// Prompt reads one answer. With constraints the answer is one of them, the
// first being the default for empty or unknown input.
func Prompt(question string, constraints ...string) (string, error) {
	prompt := question
	if len(constraints) > 0 {
		opts := append([]string{strings.ToUpper(constraints[0])}, constraints[1:]...)
		prompt = question + " [" + strings.Join(opts, "/") + "]: "
	}
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	if len(constraints) == 0 {
		return response, nil
	}
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized, nil
		}
	}
	return constraints[0], nil
}
