package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats extraction results according to output format
func FormatOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats results as a table
func formatTable(w io.Writer, response *Response) error {
	if len(response.Files) == 0 {
		fmt.Fprintln(w, "Nothing extracted.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Header
	fmt.Fprintf(tw, "TARGET\tRECORD\tATTRIBUTE\tSIZE\tFLAGS\tDESTINATION\n")
	fmt.Fprintf(tw, "------\t------\t---------\t----\t-----\t-----------\n")

	for _, file := range response.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			file.Target, file.Record, file.Attribute, file.FormatSize(), flags(file), file.Destination)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, file := range response.Files {
		if file.Hash != "" {
			fmt.Fprintf(w, "%s  %s (%s)\n", file.Hash, file.Destination, file.HashAlgorithm)
		}
	}

	// Summary
	fmt.Fprintf(w, "\nVolume: %s\n", response.Volume)
	fmt.Fprintf(w, "Extracted %d file(s), %s, %d device reads\n",
		len(response.Files), formatBytes(response.TotalBytes), response.DeviceIO.Reads)
	return nil
}

func flags(file FileResult) string {
	var out []byte
	for _, f := range []struct {
		set  bool
		char byte
	}{
		{file.Resident, 'R'},
		{file.Compressed, 'C'},
		{file.Encrypted, 'E'},
		{file.SparseBytes > 0, 'S'},
	} {
		if f.set {
			out = append(out, f.char)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}

// FormatSummary provides a one-line summary for verbose output
func FormatSummary(response *Response) string {
	summary := fmt.Sprintf("Extracted %d file", len(response.Files))
	if len(response.Files) != 1 {
		summary += "s"
	}
	return summary + fmt.Sprintf(" totaling %s in %v", formatBytes(response.TotalBytes), response.Duration)
}
