// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by nexus commands and nexus-mockapi.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// flagValue is one parsed flag. Switches leave value empty.
type flagValue struct {
	value  string
	isBool bool
	on     bool
}

// ArgParser splits a command's arguments into flags and positionals.
// Flags may be written --name value, --name=value, -n value or a bare --name
// switch. The first positional is the subcommand.
//
//	p := NewArgParser([]string{"enable", "123456", "--email=a@b.c", "--json"})
//	p.Subcommand()     // "enable"
//	p.Positional(1)    // "123456"
//	p.Flag("email")    // "a@b.c"
//	p.BoolFlag("json") // true
//
// A flag followed by a word that is not itself a flag takes that word, so
// "--password-stdin user@example.com" records the address under
// "password-stdin".
type ArgParser struct {
	flags      map[string]flagValue
	positional []string
}

// NewArgParser parses raw.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{flags: make(map[string]flagValue)}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			p.positional = append(p.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(flagName(arg), "=")
		switch {
		case hasValue && (value == "true" || value == "false"):
			p.flags[name] = flagValue{isBool: true, on: value == "true"}
		case hasValue:
			p.flags[name] = flagValue{value: value}
		case i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-"):
			i++
			p.flags[name] = flagValue{value: raw[i]}
		default:
			p.flags[name] = flagValue{isBool: true, on: true}
		}
	}
	return p
}

func flagName(s string) string {
	return strings.TrimLeft(s, "-")
}

// Subcommand returns the first positional argument, or "".
func (p *ArgParser) Subcommand() string {
	return p.Positional(0)
}

// Flag returns the value given to a flag, or "" for switches and absent flags.
func (p *ArgParser) Flag(name string) string {
	return p.flags[flagName(name)].value
}

func (p *ArgParser) FlagOrDefault(name, fallback string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return fallback
}

// BoolFlag reports whether a switch was given and not set to false.
func (p *ArgParser) BoolFlag(name string) bool {
	f := p.flags[flagName(name)]
	return f.isBool && f.on
}

// HasFlag reports whether the flag appeared in any form.
func (p *ArgParser) HasFlag(name string) bool {
	_, ok := p.flags[flagName(name)]
	return ok
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// ParseIntWithValidation parses a positive integer given for field.
func ParseIntWithValidation(s, field string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", field, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", field, n)
	}
	return n, nil
}
