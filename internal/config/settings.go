package config

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingKeys lists the keys accepted by Set, in display order
var SettingKeys = []string{
	"syncInterval",
	"logLevel",
	"conflictPolicy",
	"autoStart",
	"notifications",
	"mirrorBaseDir",
}

// Set assigns the textual value to the setting named key. Range checks are
// left to Validate, which Store.Update runs before persisting.
func (c *AccountConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "syncInterval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("syncInterval must be a number of seconds, got: %s", value)
		}
		c.SyncInterval = n
	case "logLevel":
		c.LogLevel = strings.ToLower(value)
	case "conflictPolicy":
		c.ConflictPolicy = ConflictPolicy(strings.ToLower(value))
	case "autoStart":
		b, err := strictBool(value)
		if err != nil {
			return err
		}
		c.AutoStart = b
	case "notifications":
		b, err := strictBool(value)
		if err != nil {
			return err
		}
		c.Notifications = b
	case "mirrorBaseDir":
		c.MirrorBaseDir = value
	default:
		return fmt.Errorf("unknown setting %q (valid: %s)", key, strings.Join(SettingKeys, ", "))
	}
	return nil
}

// Setting returns the textual value of key
func (c *AccountConfig) Setting(key string) (string, bool) {
	switch key {
	case "syncInterval":
		return strconv.Itoa(c.SyncInterval), true
	case "logLevel":
		return c.LogLevel, true
	case "conflictPolicy":
		return string(c.ConflictPolicy), true
	case "autoStart":
		return strconv.FormatBool(c.AutoStart), true
	case "notifications":
		return strconv.FormatBool(c.Notifications), true
	case "mirrorBaseDir":
		return c.MirrorBaseDir, true
	}
	return "", false
}

// strictBool accepts the spellings parseBool treats as true plus their
// negations, and rejects anything else
func strictBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "0", "no", "off":
		return false, nil
	}
	if parseBool(s) {
		return true, nil
	}
	return false, fmt.Errorf("expected a boolean, got: %s", s)
}
