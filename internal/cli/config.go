// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - The "nexus config" command.
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get KEY             Print one value
//	set KEY VALUE       Change a value in the config file
//	keys                List every key
//	path                Show the config file location
//	reset               Write the default configuration
//
// Examples:
//
//	nexus config set api.base_url https://blog.example.com/api
//	nexus config set session.timeout_secs 3600
//	nexus config set storage.backend sqlite
//	nexus config get session.warning_secs --json
//
// "show" and "get" report the effective values, including NEXUS_*
// overrides. "set" and "reset" edit only the file.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nexusblog/nexus-client/internal/config"
)

// HandleConfig handles "nexus config".
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw)
	sub := strings.ToLower(p.Subcommand())
	if sub == "" {
		sub = "show"
	}

	switch sub {
	case "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config show", cfg).Print()
		}
		printConfig(cfg)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return &UsageError{Message: "missing key", Usage: "nexus config get KEY"}
		}
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		val, err := cfg.Get(key)
		if err != nil {
			return &UsageError{Message: err.Error(), Usage: "nexus config keys"}
		}
		if args.JSON {
			return NewJSONResponse("config get", map[string]interface{}{"key": key, "value": val}).Print()
		}
		fmt.Println(val)
		return nil

	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 {
			return &UsageError{Message: "missing key or value", Usage: "nexus config set KEY VALUE"}
		}
		path, err := configFilePath(args)
		if err != nil {
			return &ConfigError{Err: err}
		}
		if _, err := setConfigValue(path, key, value); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config set", map[string]string{"key": key, "value": value, "path": path}).Print()
		}
		if !args.Quiet {
			fmt.Printf("%s %s = %s\n", SuccessStyle.Render("[OK]"), key, HighlightStyle.Render(value))
		}
		return nil

	case "keys":
		keys := config.GetAllKeys()
		if args.JSON {
			return NewJSONResponse("config keys", keys).Print()
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil

	case "path":
		path, err := configFilePath(args)
		if err != nil {
			return &ConfigError{Err: err}
		}
		if args.JSON {
			return NewJSONResponse("config path", map[string]string{"path": path}).Print()
		}
		fmt.Println(path)
		return nil

	case "reset":
		path, err := configFilePath(args)
		if err != nil {
			return &ConfigError{Err: err}
		}
		if err := saveConfigFile(config.Default(), path); err != nil {
			return &ConfigError{Err: err}
		}
		if !args.Quiet && !args.JSON {
			fmt.Printf("%s Configuration reset (%s)\n", SuccessStyle.Render("[OK]"), path)
		}
		if args.JSON {
			return NewJSONResponse("config reset", map[string]string{"path": path}).Print()
		}
		return nil

	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown config subcommand %q", sub),
			Usage:   "nexus config [show|get KEY|set KEY VALUE|keys|path|reset]",
		}
	}
}

// configFilePath returns the file "set" and "reset" write: --config, or the
// existing TOML or JSON file, or a new TOML file.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// setConfigValue changes one key in the file at path. Environment overrides
// are not applied, so they never leak into the file.
func setConfigValue(path, key, value string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if strings.HasSuffix(path, ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, &ConfigError{Err: err}
	}

	if err := cfg.Set(key, value); err != nil {
		return nil, &UsageError{Message: err.Error(), Usage: "nexus config keys"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if err := saveConfigFile(cfg, path); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

func saveConfigFile(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func printConfig(cfg *config.Config) {
	fmt.Println(TitleStyle.Render("Nexus Configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		if s, _, ok := strings.Cut(key, "."); ok && s != section {
			section = s
			fmt.Println(SectionStyle.Render("[" + section + "]"))
		}
		val, err := cfg.Get(key)
		if err != nil {
			continue
		}
		shown := fmt.Sprint(val)
		if shown == "" {
			shown = DimStyle.Render("(default)")
		}
		fmt.Printf("  %s%s\n", RenderLabel(key, 30), ValueStyle.Render(shown))
	}
	fmt.Println()
}
