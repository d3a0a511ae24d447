package browse

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput formats a listing according to output format
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

// formatTable keeps index (collation) order rather than sorting
func formatTable(w io.Writer, response *Response) error {
	fmt.Fprintf(w, "Directory: %s (record %s)\n\n", response.Directory, response.Record)
	if len(response.Entries) == 0 {
		fmt.Fprintln(w, "Directory is empty.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tRECORD\tSIZE\tATTRIBUTES\tMODIFIED\tNAMESPACE\n")
	fmt.Fprintf(tw, "----\t------\t----\t----------\t--------\t---------\n")
	for _, entry := range response.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Name, entry.Reference(), entry.FormatSize(), entry.Attributes,
			entry.Modified.Format("2006-01-02 15:04:05"), entry.Namespace)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var files, dirs int
	for _, entry := range response.Entries {
		if entry.Directory {
			dirs++
		} else {
			files++
		}
	}
	fmt.Fprintf(w, "\n%d file(s), %d dir(s)\n", files, dirs)
	return nil
}

func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}
