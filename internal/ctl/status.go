package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connector     string `json:"connector"`
	RecordDir     string `json:"record_dir"`
	WSClients     int    `json:"ws_clients"`
	Monitor       struct {
		Connection      string `json:"connection"`
		StatusText      string `json:"status_text"`
		SignalQuality   int    `json:"signal_quality"`
		Headset         string `json:"headset"`
		Attention       int    `json:"attention"`
		Meditation      int    `json:"meditation"`
		AttentionAbove  bool   `json:"attention_above"`
		MeditationAbove bool   `json:"meditation_above"`
		Blink           int    `json:"blink_strength"`
		Logging         bool   `json:"logging"`
		LogText         string `json:"log_text"`
		LogPath         string `json:"log_path"`
		LogRows         int64  `json:"log_rows"`
		Settings        struct {
			RawEnabled          bool `json:"raw_enabled"`
			BlinkEnabled        bool `json:"blink_enabled"`
			AttentionThreshold  int  `json:"attention_threshold"`
			MeditationThreshold int  `json:"meditation_threshold"`
		} `json:"settings"`
		Stream struct {
			Lines   uint64 `json:"lines"`
			Packets uint64 `json:"packets"`
			Dropped uint64 `json:"dropped"`
		} `json:"stream"`
	} `json:"monitor"`
	Disk *struct {
		AvailableBytes int64 `json:"available_bytes"`
	} `json:"disk"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if jsonOutput {
		var raw any
		if err := getJSON(baseURL, "/api/status", &raw); err != nil {
			return err
		}
		return printJSON(raw)
	}
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	m := s.Monitor
	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)

	fmt.Println()
	fmt.Println(header("  NEUROTAP STATUS"))
	fmt.Println(rule(44))
	fmt.Printf("  %s %s (%s)\n", padRight(dim.Render("Daemon:"), 12), s.Name, s.Mode)
	fmt.Printf("  %s %s\n", padRight(dim.Render("Uptime:"), 12), uptime)
	fmt.Printf("  %s %s  %s\n", padRight(dim.Render("Connector:"), 12),
		colorize(stateColor(m.Connection), m.StatusText), dim.Render(s.Connector))
	if m.Headset != "" {
		fmt.Printf("  %s %s\n", padRight(dim.Render("Headset:"), 12), m.Headset)
	}
	fmt.Printf("  %s %s\n", padRight(dim.Render("Signal:"), 12),
		colorize(signalColor(m.SignalQuality), fmt.Sprintf("%d", m.SignalQuality)))
	fmt.Printf("  %s %s %3d\n", padRight(dim.Render("Attention:"), 12),
		meter(m.Attention, m.Settings.AttentionThreshold, 20), m.Attention)
	fmt.Printf("  %s %s %3d\n", padRight(dim.Render("Meditation:"), 12),
		meter(m.Meditation, m.Settings.MeditationThreshold, 20), m.Meditation)
	if m.Blink > 0 {
		fmt.Printf("  %s %d\n", padRight(dim.Render("Last blink:"), 12), m.Blink)
	}
	fmt.Printf("  %s %s\n", padRight(dim.Render("Recording:"), 12), m.LogText)
	if m.Logging {
		fmt.Printf("  %s %d rows  %s\n", padRight("", 12), m.LogRows, dim.Render(m.LogPath))
	}
	fmt.Printf("  %s raw %s  blink %s\n", padRight(dim.Render("Features:"), 12),
		onOff(m.Settings.RawEnabled), onOff(m.Settings.BlinkEnabled))
	fmt.Printf("  %s %d lines, %d packets, %d dropped\n", padRight(dim.Render("Stream:"), 12),
		m.Stream.Lines, m.Stream.Packets, m.Stream.Dropped)
	if s.Disk != nil {
		fmt.Printf("  %s %s free in %s\n", padRight(dim.Render("Disk:"), 12),
			formatBytes(s.Disk.AvailableBytes), s.RecordDir)
	}
	fmt.Printf("  %s %s\n", padRight(dim.Render("Host:"), 12), baseURL)
	fmt.Println()

	return nil
}
