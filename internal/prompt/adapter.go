package prompt

import (
	"os"
	"path/filepath"

	"contaluz/internal/normalize"
)

// FindAdapterPath resolves the LoRA adapter directory for a
// concessionaria/UF pair: adapters/{ckey}_{ufkey}/ when it exists and
// actually contains adapter files, "" otherwise.
func FindAdapterPath(adaptersDir, concessionaria, uf string) string {
	if adaptersDir == "" {
		return ""
	}
	dir := filepath.Join(adaptersDir, normalize.Key(concessionaria)+"_"+normalize.Key(uf))
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return ""
	}
	for _, pattern := range []string{"adapter*.safetensors", "adapter*.bin", "adapter_config.json"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err == nil && len(matches) > 0 {
			return dir
		}
	}
	return ""
}
