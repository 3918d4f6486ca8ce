// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load decodes v's bound flags (and, if SetConfigFile was called, its parsed
// YAML file) into a Config. Config's fields carry only `yaml` struct tags,
// so this builds its own mapstructure.Decoder with TagName: "yaml" instead
// of calling viper.Unmarshal directly — the same fix the teacher applies in
// PopulateNewConfigFromLegacyFlagsAndConfig, whose decoderConfig sets
// TagName: "yaml" for exactly this reason. viper.Unmarshal itself never sets
// a TagName, so it falls back to matching Go field names, which never
// case-insensitively equal this config's dashed yaml keys (e.g.
// "ImagePath" vs. "image-path") once a struct has more than one word.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		WeaklyTypedInput: true,
		TagName:          "yaml",
		Result:           &c,
	})
	if err != nil {
		return Config{}, fmt.Errorf("cfg: new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return Config{}, fmt.Errorf("cfg: decode: %w", err)
	}
	return c, nil
}
