package web

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"files": s.getStatisticsFiles()})
}

func (s *Server) getStatisticsFiles() []map[string]string {
	files := []map[string]string{}

	filepath.Walk(s.StatisticsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(path, ".csv") {
			webPath := strings.ReplaceAll(path, "\\", "/")
			files = append(files, map[string]string{
				"path": webPath,
				"name": info.Name(),
				"size": fmt.Sprintf("%.2f KB", float64(info.Size())/1024),
				"time": info.ModTime().Format("2006-01-02 15:04:05"),
			})
		}

		return nil
	})

	return files
}

func (s *Server) handleCsvData(c *gin.Context) {
	filePath := c.Query("file")
	if filePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file parameter required"})
		return
	}

	statsDir, err := filepath.Abs(s.StatisticsDir)
	if err != nil {
		log.Printf("err getting absolute path for statistics directory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil || !strings.HasPrefix(absPath, statsDir) {
		log.Printf("rejected csv path outside statistics directory: %s", filePath)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file path"})
		return
	}

	file, err := os.Open(absPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	headers, err := reader.Read()
	if err != nil {
		log.Printf("err reading csv headers from %s: %v", absPath, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read csv"})
		return
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("err reading csv row: %v", err)
			continue
		}

		row := make(map[string]string)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = value
			}
		}
		rows = append(rows, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"headers": headers,
		"rows":    rows,
		"path":    filePath,
	})
}
