// Copyright (c) Microsoft. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shadai-group/shadai/shadai"
)

type weatherArgs struct {
	Location string `json:"location"`
	Unit     string `json:"unit" jsonschema:"enum=celsius|fahrenheit,default=fahrenheit"`
}

type listFilesArgs struct {
	Limit int `json:"limit" jsonschema:"default=20"`
}

// GetTools returns the tools the agent may run locally.
func GetTools() []shadai.Tool {
	weatherTool := shadai.MustTool(shadai.NewTypedTool("get_weather", "",
		func(ctx context.Context, args weatherArgs) (any, error) {
			// Simulated weather API
			temp := 72
			if args.Unit == "celsius" {
				temp = 22
			}
			return map[string]any{
				"location":    args.Location,
				"temperature": temp,
				"unit":        args.Unit,
				"condition":   "sunny",
			}, nil
		},
		shadai.WithDoc(`Get the current weather for a location.

		Args:
		    location: City name or location
		    unit: Temperature unit`),
	))

	timeTool := shadai.MustTool(shadai.NewTool("get_time",
		"Get the current time.",
		nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			now := time.Now()
			return map[string]string{
				"time":     now.Format("3:04 PM"),
				"date":     now.Format("Monday, January 2, 2006"),
				"timezone": now.Location().String(),
				"iso8601":  now.Format(time.RFC3339),
			}, nil
		},
	))

	// Directory listing can be slow on network drives, so it completes in the background.
	listFilesTool := shadai.MustTool(shadai.NewTypedAsyncTool("list_local_files",
		"Lists files in the current working directory of the agent runtime.",
		func(ctx context.Context, args listFilesArgs) *shadai.Task {
			return shadai.NewTask(ctx, func(ctx context.Context) (any, error) {
				entries, err := os.ReadDir(".")
				if err != nil {
					return nil, fmt.Errorf("read directory: %w", err)
				}
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					if !e.IsDir() {
						names = append(names, e.Name())
					}
				}
				sort.Strings(names)
				if args.Limit > 0 && len(names) > args.Limit {
					names = names[:args.Limit]
				}
				return names, nil
			})
		},
	))

	return []shadai.Tool{weatherTool, timeTool, listFilesTool}
}
