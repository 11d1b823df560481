package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mcmengchen/dwarfaccel/accel"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// sectionChoices maps the --section flag's user-facing names to the
// object-section name loadObject collects it under.
var sectionChoices = map[string]string{
	"apple-names":      "apple_names",
	"apple-types":      "apple_types",
	"apple-namespaces": "apple_namespaces",
	"apple-objc":       "apple_objc",
	"debug-names":      "debug_names",
}

func runDump(cmd *cobra.Command, args []string) error {
	color.NoColor = viper.GetBool("no-color")

	obj, err := loadObject(args[0])
	if err != nil {
		return err
	}

	section := viper.GetString("section")
	names, err := resolveSections(obj, section)
	if err != nil {
		return err
	}

	if viper.GetBool("summary") {
		return writeSummary(obj, names)
	}

	sink := accel.NewTreeSink(os.Stdout)
	for _, name := range names {
		if err := dumpSection(sink, obj, name); err != nil {
			logger.Error("dump failed", "section", name, "error", err)
			return fmt.Errorf("dwarfaccel: dumping %s: %w", name, err)
		}
	}
	return nil
}

// resolveSections turns the --section flag value into the concrete list
// of object-section names to dump. "auto" prefers debug_names when
// present, falling back to the first Apple section found; "all" dumps
// every accelerator section present in the object.
func resolveSections(obj *objectSections, section string) ([]string, error) {
	if section == "all" {
		var names []string
		if _, ok := obj.sections["debug_names"]; ok {
			names = append(names, "debug_names")
		}
		for _, n := range appleSectionNames {
			if _, ok := obj.sections[n]; ok {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("dwarfaccel: no accelerator table sections found")
		}
		return names, nil
	}

	if section == "auto" || section == "" {
		if _, ok := obj.sections["debug_names"]; ok {
			return []string{"debug_names"}, nil
		}
		for _, n := range appleSectionNames {
			if _, ok := obj.sections[n]; ok {
				return []string{n}, nil
			}
		}
		return nil, fmt.Errorf("dwarfaccel: no accelerator table sections found")
	}

	name, ok := sectionChoices[section]
	if !ok {
		return nil, fmt.Errorf("dwarfaccel: unknown section %q", section)
	}
	if _, present := obj.sections[name]; !present {
		return nil, fmt.Errorf("dwarfaccel: object has no %s section", name)
	}
	return []string{name}, nil
}

func dumpSection(sink *accel.TreeSink, obj *objectSections, name string) error {
	if name == "debug_names" {
		dn, err := accel.ExtractDebugNames(obj.sections["debug_names"], obj.relocs["debug_names"], obj.stringSection(), obj.littleEndian)
		if err != nil {
			return err
		}
		return dn.Dump(sink)
	}

	table := accel.NewAppleTable(obj.sections[name], obj.relocs[name], obj.stringSection(), obj.littleEndian)
	if err := table.Extract(); err != nil {
		return err
	}
	if !table.ValidateForms() {
		return fmt.Errorf("dwarfaccel: %s declares an unsupported atom form", name)
	}
	return table.Dump(sink)
}
