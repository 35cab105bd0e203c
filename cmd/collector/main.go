package main

import (
	"os"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/cmd/collector/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
