// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"
)

// SaveConfig saves the user-specific flags of cmd, and any other flag that
// was changed or is named in overrides, to outfile as YAML. Dotted flag
// names become nested sections.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	vip, err := Viper(cmd)
	if err != nil {
		return err
	}

	settings := map[string]interface{}{}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		override, overrideExists := overrides[f.Name]
		setup := readBoolAnnotation(f, "setup")
		hidden := readBoolAnnotation(f, "hidden")
		user := readBoolAnnotation(f, "user")

		// in any of these cases, don't store the key in the file
		if setup || hidden || (!user && !f.Changed && !overrideExists) {
			return
		}

		value := vip.Get(f.Name)
		if overrideExists {
			value = override
		}
		setNested(settings, strings.Split(f.Name, "."), value)
	})

	var data []byte
	if len(settings) > 0 {
		data, err = yaml.Marshal(settings)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return Error.Wrap(atomicWrite(outfile, 0600, data))
}

func setNested(settings map[string]interface{}, path []string, value interface{}) {
	for _, section := range path[:len(path)-1] {
		next, ok := settings[section].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			settings[section] = next
		}
		settings = next
	}
	settings[path[len(path)-1]] = value
}

// readBoolAnnotation is a helper to see if a boolean annotation is set to true on the flag.
func readBoolAnnotation(flag *pflag.Flag, key string) bool {
	annotation := flag.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// atomicWrite is a helper to atomically write the data to the outfile.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return errs.Wrap(err)
	}
	closed := false
	defer func() {
		if err != nil {
			if !closed {
				err = errs.Combine(err, fh.Close())
			}
			err = errs.Combine(err, os.Remove(fh.Name()))
		}
	}()
	if _, err := fh.Write(data); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Chmod(mode); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return errs.Wrap(err)
	}
	closed = true
	if err := fh.Close(); err != nil {
		return errs.Wrap(err)
	}
	if err := os.Rename(fh.Name(), outfile); err != nil {
		return errs.Wrap(err)
	}
	return nil
}
