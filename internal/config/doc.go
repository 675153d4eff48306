// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package config loads Mediaforge configuration with Koanf v2.
//
// Sources are layered, later layers overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file from CONFIG_PATH, ./config.yaml or /etc/mediaforge/config.yaml
//  3. Environment variables listed in envMappings
//
// Minimal environment for a local run:
//
//	JWT_SECRET=<32+ chars>
//	CDN_DOMAIN=media.example.com
//	STORAGE_TYPE=local
//	STORAGE_LOCAL_PATH=/tmp/mediaforge/objects
//
// Quality profiles are only configurable through the YAML file:
//
//	quality:
//	  profiles:
//	    - {name: 1080p, width: 1920, height: 1080, bitrate_kbps: 5000, frame_rate: 30, codec: h264}
//	  tiers:
//	    wifi: 1080p
package config
